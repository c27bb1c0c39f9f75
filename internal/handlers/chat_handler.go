package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"messenger_backend/internal/middleware"
	repoChat "messenger_backend/internal/repositories/chat"
	"messenger_backend/internal/repositories"
	chatsvc "messenger_backend/internal/services/chat"
	"messenger_backend/internal/services/delivery"
	"messenger_backend/pkg/apperrors"
)

// ChatHandler exposes the REST surface next to the realtime channel:
// conversation management, message history and block management. Live
// traffic goes over the websocket.
type ChatHandler struct {
	Chats         *chatsvc.ChatService
	Blocks        *repoChat.BlockRepository
	Notifications *repositories.NotificationRepository
	Orchestrator  *delivery.Orchestrator
}

func NewChatHandler(
	chats *chatsvc.ChatService,
	blocks *repoChat.BlockRepository,
	notifications *repositories.NotificationRepository,
	orchestrator *delivery.Orchestrator,
) *ChatHandler {
	return &ChatHandler{
		Chats:         chats,
		Blocks:        blocks,
		Notifications: notifications,
		Orchestrator:  orchestrator,
	}
}

func respondError(c *gin.Context, err error) {
	appErr := apperrors.From(err)
	c.JSON(appErr.HTTPCode, gin.H{"error": appErr})
}

// CreateConversation returns the direct conversation with the given
// participant, creating it if needed.
func (h *ChatHandler) CreateConversation(c *gin.Context) {
	var body struct {
		ParticipantID string `json:"participantId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, apperrors.ValidationError("participantId is required"))
		return
	}

	conv, err := h.Chats.GetOrCreateDirect(middleware.GetUserID(c), body.ParticipantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (h *ChatHandler) GetConversations(c *gin.Context) {
	convs, err := h.Chats.GetConversations(middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (h *ChatHandler) GetMessages(c *gin.Context) {
	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(c, apperrors.ValidationError("before must be RFC3339"))
			return
		}
		before = &t
	}

	messages, err := h.Chats.GetMessages(middleware.GetUserID(c), c.Param("id"), 50, before)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

// DeleteConversation hides the conversation for the caller only.
func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	if err := h.Chats.DeleteConversationForUser(c.Param("id"), middleware.GetUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) GetUnreadCount(c *gin.Context) {
	count, err := h.Chats.UnreadCount(middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

// DeleteMessage tombstones a message for everyone and fans the event out.
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	message, err := h.Chats.DeleteMessageForEveryone(c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	h.Orchestrator.EmitMessageDeleted(message)
	c.JSON(http.StatusOK, message)
}

func (h *ChatHandler) BlockUser(c *gin.Context) {
	var body struct {
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, apperrors.ValidationError("userId is required"))
		return
	}
	if body.UserID == middleware.GetUserID(c) {
		respondError(c, apperrors.ValidationError("Cannot block yourself"))
		return
	}
	if err := h.Blocks.Block(middleware.GetUserID(c), body.UserID); err != nil {
		respondError(c, apperrors.DatabaseError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) UnblockUser(c *gin.Context) {
	if err := h.Blocks.Unblock(middleware.GetUserID(c), c.Param("userId")); err != nil {
		respondError(c, apperrors.DatabaseError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) GetNotifications(c *gin.Context) {
	notifications, err := h.Notifications.FindByUser(middleware.GetUserID(c), 50)
	if err != nil {
		respondError(c, apperrors.DatabaseError(err))
		return
	}
	c.JSON(http.StatusOK, notifications)
}
