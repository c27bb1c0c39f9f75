package ws

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"messenger_backend/internal/auth"
	"messenger_backend/internal/config"
	"messenger_backend/internal/logger"
	"messenger_backend/internal/models"
	"messenger_backend/internal/services/delivery"
	"messenger_backend/pkg/apperrors"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// UserFinder resolves the authenticated user at connect time.
type UserFinder interface {
	FindByID(id string) (*models.User, error)
}

type Handler struct {
	Hub          *Hub
	Orchestrator *delivery.Orchestrator
	Users        UserFinder
}

func NewHandler(hub *Hub, orchestrator *delivery.Orchestrator, users UserFinder) *Handler {
	return &Handler{
		Hub:          hub,
		Orchestrator: orchestrator,
		Users:        users,
	}
}

// ServeWS authenticates exactly once at connect time and upgrades the
// connection. Authentication failure refuses the upgrade; there is no
// partial session.
func (h *Handler) ServeWS(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing access token"})
		return
	}

	claims, err := auth.ParseToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}

	user, err := h.Users.FindByID(claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unknown user"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": apperrors.Unavailable(err, "auth")})
		return
	}

	// Single active device session: when the user pins a device, only
	// tokens issued to that device may connect.
	if user.ActiveDeviceID != nil && *user.ActiveDeviceID != claims.DeviceID {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Device mismatch"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "user_id", user.ID, "error", err)
		return
	}

	client := &Client{
		ID:     uuid.New().String(),
		UserID: user.ID,
		Conn:   conn,
		Send:   make(chan []byte, config.GetConfig().WS.SendBufferSize),
		hub:    h.Hub,
		orch:   h.Orchestrator,
	}

	// Register before the pumps start: once readPump is live, a dying
	// socket runs Disconnected, which must never precede Connected for
	// the same connection id. Catch-up and snapshot frames land in the
	// buffered send channel and flush when writePump comes up.
	h.Hub.Subscribe(client, delivery.UserTopic(user.ID))
	h.Orchestrator.Connected(user.ID, client.ID)

	if snapshot, err := h.Orchestrator.PresenceSnapshot(user.ID); err == nil {
		client.enqueue(delivery.EventPresenceSnapshot, delivery.PresenceSnapshotPayload{
			OnlineUserIDs: snapshot,
		})
	} else {
		logger.Error("presence snapshot failed", "user_id", user.ID, "error", err)
	}

	go client.writePump()
	go client.readPump()
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}
