package app

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"messenger_backend/database"
	"messenger_backend/internal/config"
	"messenger_backend/internal/handlers"
	"messenger_backend/internal/logger"
	"messenger_backend/internal/repositories"
	repoChat "messenger_backend/internal/repositories/chat"
	"messenger_backend/internal/routes"
	chatsvc "messenger_backend/internal/services/chat"
	"messenger_backend/internal/services/delivery"
	"messenger_backend/internal/services/media"
	"messenger_backend/internal/services/presence"
	"messenger_backend/internal/services/push"
	"messenger_backend/ws"
)

func Run() {
	config.LoadConfig()
	cfg := config.AppConfig
	logger.Init(cfg.Server.Env)
	logger.Info("Logger initialized", "env", cfg.Server.Env)

	logger.Info("Connecting to database...")
	gormDB, err := database.ConnectGorm()
	if err != nil {
		logger.Fatal("Failed to connect to GORM", "error", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		logger.Fatal("Failed to get *sql.DB from GORM", "error", err)
	}
	if err = sqlDB.Ping(); err != nil {
		logger.Fatal("Database unavailable", "error", err)
	}
	logger.Info("Database connected")

	if err := database.AutoMigrate(gormDB); err != nil {
		logger.Fatal("Migration failed", "error", err)
	}

	ginRouter := SetupRouter(cfg, gormDB)

	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info(fmt.Sprintf("🚀 Server starting on %s", address))
	if err := ginRouter.Run(address); err != nil {
		logger.Fatal("Server startup error", "error", err)
	}
}

func SetupRouter(cfg *config.Config, gormDB *gorm.DB) *gin.Engine {
	users := repositories.NewUserRepository(gormDB)
	notifications := repositories.NewNotificationRepository(gormDB)
	conversations := repoChat.NewConversationRepository(gormDB)
	messages := repoChat.NewMessageRepository(gormDB)
	reactions := repoChat.NewReactionRepository(gormDB)
	blocks := repoChat.NewBlockRepository(gormDB)

	// A restart loses every live connection; stale online flags from the
	// previous process must not survive it.
	if err := users.ResetAllOnline(); err != nil {
		logger.Fatal("Failed to reset online flags", "error", err)
	}

	guard := chatsvc.NewAccessGuard(conversations, blocks, users)
	chats := chatsvc.NewChatService(conversations, messages, guard)
	reactionSvc := chatsvc.NewReactionService(reactions, messages, guard)

	registry := presence.NewRegistry()
	signer := media.NewSigner(cfg.Media.SignSecret, time.Duration(cfg.Media.URLTTL)*time.Second)

	var pusher delivery.Pusher = push.NopNotifier{}
	if cfg.Push.Enabled {
		pusher = push.NewStoreNotifier(notifications)
	}

	hub := ws.NewHub()
	orchestrator := delivery.NewOrchestrator(
		messages,
		chats,
		reactionSvc,
		guard,
		registry,
		users,
		signer,
		pusher,
		hub,
	)

	wsHandler := ws.NewHandler(hub, orchestrator, users)
	chatHandler := handlers.NewChatHandler(chats, blocks, notifications, orchestrator)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	routes.RegisterRoutes(router, chatHandler, wsHandler)
	return router
}
