package ws

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"messenger_backend/internal/config"
	"messenger_backend/internal/logger"
	chatsvc "messenger_backend/internal/services/chat"
	"messenger_backend/internal/services/delivery"
	"messenger_backend/pkg/apperrors"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one authenticated websocket connection. A user may hold any
// number of clients at once.
type Client struct {
	ID     string // connection id, unique per socket
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte

	hub  *Hub
	orch *delivery.Orchestrator
}

// readPump consumes client commands until the connection dies. On exit the
// client leaves the hub and the presence registry before any durable
// presence flip is emitted.
func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.orch.Disconnected(c.UserID, c.ID)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(int64(config.GetConfig().WS.MaxMessageBytes))
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error", "user_id", c.UserID, "error", err)
			}
			break
		}

		cmd, err := ParseCommand(raw)
		if err != nil {
			c.ack(&Command{}, err, nil)
			continue
		}
		c.handleCommand(cmd)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Warn("websocket write error", "user_id", c.UserID, "error", err)
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleCommand dispatches one validated command. Failures are acked, never
// fatal to the connection; typing signals are fire-and-forget.
func (c *Client) handleCommand(cmd *Command) {
	switch cmd.Action {

	case ActionConversationJoin:
		payload, err := decodeJoin(cmd)
		if err != nil {
			c.ack(cmd, err, nil)
			return
		}
		if err := c.orch.JoinConversation(c.UserID, payload.ConversationID); err != nil {
			c.ack(cmd, err, nil)
			return
		}
		c.hub.Subscribe(c, delivery.ConversationTopic(payload.ConversationID))
		c.ack(cmd, nil, nil)

	case ActionConversationLeave:
		payload, err := decodeJoin(cmd)
		if err != nil {
			c.ack(cmd, err, nil)
			return
		}
		c.hub.Unsubscribe(c, delivery.ConversationTopic(payload.ConversationID))
		c.ack(cmd, nil, nil)

	case ActionMessageSend:
		payload, err := decodeSend(cmd)
		if err != nil {
			c.ack(cmd, err, nil)
			return
		}
		message, err := c.orch.SendMessage(chatsvc.SendMessageInput{
			ConversationID: payload.ConversationID,
			SenderID:       c.UserID,
			Type:           payload.Type,
			Body:           payload.Body,
			IsEncrypted:    payload.IsEncrypted,
			MediaURL:       payload.MediaURL,
			MediaName:      payload.MediaName,
			MediaMime:      payload.MediaMime,
			MediaSize:      payload.MediaSize,
			VoiceDuration:  payload.VoiceDuration,
			ClientID:       payload.ClientID,
			ReplyToID:      payload.ReplyToID,
		})
		if err != nil {
			c.ack(cmd, err, nil)
			return
		}
		c.ack(cmd, nil, map[string]any{"message": message})

	case ActionMessageSeen:
		payload, err := decodeSeen(cmd)
		if err != nil {
			c.ack(cmd, err, nil)
			return
		}
		c.ack(cmd, c.orch.MarkSeen(c.UserID, payload.ConversationID, payload.MessageIDs), nil)

	case ActionMessageReact:
		payload, err := decodeReact(cmd)
		if err != nil {
			c.ack(cmd, err, nil)
			return
		}
		c.ack(cmd, c.orch.React(c.UserID, payload.MessageID, payload.Emoji), nil)

	case ActionTypingStart, ActionTypingStop:
		payload, err := decodeTyping(cmd)
		if err != nil {
			return // fire-and-forget, invalid frames vanish
		}
		c.orch.Typing(c.UserID, payload.ConversationID, cmd.Action == ActionTypingStart)

	default:
		c.ack(cmd, apperrors.ValidationError("Unknown action: "+cmd.Action), nil)
	}
}

// ack reports the outcome of a command back over this connection only.
func (c *Client) ack(cmd *Command, err error, data any) {
	if cmd.AckID == "" {
		return
	}
	response := Ack{AckID: cmd.AckID, OK: err == nil, Data: data}
	if err != nil {
		response.Error = apperrors.From(err)
	}
	c.enqueue("ack", response)
}

// enqueue sends an event to this single client, bypassing topic fan-out.
func (c *Client) enqueue(event string, payload any) {
	frame, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		logger.Error("failed to marshal frame", "event", event, "error", err)
		return
	}
	select {
	case c.Send <- frame:
	default:
		logger.Warn("send buffer full, dropping frame", "event", event, "user_id", c.UserID)
	}
}
