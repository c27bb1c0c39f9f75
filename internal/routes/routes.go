package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messenger_backend/internal/handlers"
	"messenger_backend/internal/middleware"
	"messenger_backend/ws"
)

// RegisterRoutes wires the REST surface and the websocket endpoint.
func RegisterRoutes(router *gin.Engine, chat *handlers.ChatHandler, wsHandler *ws.Handler) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Websocket endpoint authenticates itself (token in header or query).
	router.GET("/ws", wsHandler.ServeWS)

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware())
	{
		api.POST("/conversations", chat.CreateConversation)
		api.GET("/conversations", chat.GetConversations)
		api.GET("/conversations/:id/messages", chat.GetMessages)
		api.GET("/conversations/:id/unread", chat.GetUnreadCount)
		api.DELETE("/conversations/:id", chat.DeleteConversation)

		api.DELETE("/messages/:id", chat.DeleteMessage)

		api.POST("/blocks", chat.BlockUser)
		api.DELETE("/blocks/:userId", chat.UnblockUser)

		api.GET("/notifications", chat.GetNotifications)
	}
}
