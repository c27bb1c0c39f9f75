package ws

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messenger_backend/internal/auth"
	"messenger_backend/internal/config"
	"messenger_backend/internal/models"
	modelChat "messenger_backend/internal/models/chat"
	chatsvc "messenger_backend/internal/services/chat"
	"messenger_backend/internal/services/delivery"
	"messenger_backend/internal/services/presence"
)

// --- session fakes, one per orchestrator boundary ---

type sessionStore struct{}

func (sessionStore) MarkDelivered([]string, time.Time) ([]modelChat.Message, error) {
	return nil, nil
}
func (sessionStore) MarkDeliveredForRecipient(string, time.Time) ([]modelChat.Message, error) {
	return nil, nil
}
func (sessionStore) MarkDeliveredInConversation(string, string, time.Time) ([]modelChat.Message, error) {
	return nil, nil
}
func (sessionStore) MarkSeen(string, string, []string, time.Time) ([]modelChat.Message, error) {
	return nil, nil
}

type sessionCreator struct{}

func (sessionCreator) CreateMessage(input chatsvc.SendMessageInput) (*modelChat.Message, bool, error) {
	return &modelChat.Message{
		ID:             "m1",
		ConversationID: input.ConversationID,
		SenderID:       input.SenderID,
		RecipientID:    "recipient",
		Type:           modelChat.MessageTypeText,
		Body:           input.Body,
		CreatedAt:      time.Now(),
	}, true, nil
}

type sessionGuard struct{}

func (sessionGuard) AssertConversationAccess(string, string) error      { return nil }
func (sessionGuard) AssertConversationInteraction(string, string) error { return nil }
func (sessionGuard) CanSeePresence(string, string) (bool, error)        { return true, nil }
func (sessionGuard) FilterVisiblePresence(_ string, candidates []string) ([]string, error) {
	return candidates, nil
}

type sessionSigner struct{}

func (sessionSigner) SignMessageMedia(m modelChat.Message) modelChat.Message { return m }

// sessionUsers serves both the connect-time lookup and the durable
// presence projection.
type sessionUsers struct {
	mu      sync.Mutex
	findErr error
	online  map[string]bool
}

func (u *sessionUsers) FindByID(id string) (*models.User, error) {
	if u.findErr != nil {
		return nil, u.findErr
	}
	return &models.User{ID: id, Username: "user-" + id, ShowOnlineStatus: true}, nil
}

func (u *sessionUsers) SetOnline(userID string, online bool, _ time.Time) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.online == nil {
		u.online = map[string]bool{}
	}
	u.online[userID] = online
	return nil
}

func (u *sessionUsers) isOnline(userID string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.online[userID]
}

type sessionPusher struct {
	mu    sync.Mutex
	calls int
}

func (p *sessionPusher) NotifyNewMessage(string, string, *modelChat.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return nil
}

func (p *sessionPusher) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// --- fixture ---

type sessionFixture struct {
	registry *presence.Registry
	users    *sessionUsers
	pusher   *sessionPusher
	orch     *delivery.Orchestrator
	server   *httptest.Server
}

func newSessionFixture(t *testing.T, maxMessageBytes int) *sessionFixture {
	t.Helper()

	prev := config.AppConfig
	cfg := &config.Config{}
	cfg.JWT.Secret = "test-secret"
	cfg.JWT.TTL = 60
	cfg.WS.SendBufferSize = 16
	cfg.WS.MaxMessageBytes = maxMessageBytes
	config.AppConfig = cfg
	t.Cleanup(func() { config.AppConfig = prev })

	registry := presence.NewRegistry()
	users := &sessionUsers{}
	pusher := &sessionPusher{}
	hub := NewHub()
	orch := delivery.NewOrchestrator(
		sessionStore{}, sessionCreator{}, nil, sessionGuard{},
		registry, users, sessionSigner{}, pusher, hub,
	)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", NewHandler(hub, orch, users).ServeWS)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &sessionFixture{
		registry: registry,
		users:    users,
		pusher:   pusher,
		orch:     orch,
		server:   server,
	}
}

func (f *sessionFixture) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	token, err := auth.GenerateToken(userID, "device-a")
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

// --- tests ---

// A socket that dies right after upgrade must still deregister: the
// presence registration happens before the read pump starts, so the pump's
// deregistration can never run first and strand a ghost connection.
func TestServeWS_ImmediateCloseLeavesNoGhostPresence(t *testing.T) {
	f := newSessionFixture(t, 64*1024)

	conn := f.dial(t, "recipient")
	conn.Close()

	assert.Eventually(t, func() bool {
		return !f.registry.IsOnline("recipient") && !f.users.isOnline("recipient")
	}, time.Second, 10*time.Millisecond, "user with zero live sockets must not stay online")

	// With the recipient genuinely offline the push fallback must fire.
	body := "hi"
	_, err := f.orch.SendMessage(chatsvc.SendMessageInput{
		ConversationID: "c1",
		SenderID:       "sender",
		Type:           modelChat.MessageTypeText,
		Body:           &body,
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return f.pusher.callCount() == 1
	}, time.Second, 10*time.Millisecond, "offline recipient must get exactly one push fallback")
}

// The session opens with a presence snapshot, and the configured read limit
// closes connections that exceed it.
func TestServeWS_SnapshotThenReadLimitEnforced(t *testing.T) {
	f := newSessionFixture(t, 128)

	conn := f.dial(t, "alice")
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, delivery.EventPresenceSnapshot, env.Event)

	assert.Eventually(t, func() bool {
		return f.registry.IsOnline("alice")
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, make([]byte, 1024)))

	// The oversized frame kills the connection server-side.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.Eventually(t, func() bool {
		return !f.registry.IsOnline("alice")
	}, time.Second, 10*time.Millisecond)
}

// Storage failure at connect time refuses the upgrade as unavailable, not
// as an auth failure.
func TestServeWS_StorageFailureRefusesUpgrade(t *testing.T) {
	f := newSessionFixture(t, 64*1024)
	f.users.findErr = errors.New("connection refused")

	token, err := auth.GenerateToken("alice", "device-a")
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, resp)
	defer resp.Body.Close()

	assert.Equal(t, 503, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "UNAVAILABLE", body.Error.Code)
}
