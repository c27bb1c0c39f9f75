package push

import (
	"encoding/json"

	"gorm.io/datatypes"

	"messenger_backend/internal/logger"
	"messenger_backend/internal/models"
	modelChat "messenger_backend/internal/models/chat"
	"messenger_backend/internal/repositories"
	"messenger_backend/pkg/apperrors"
)

// Notifier is the push-fallback boundary: invoked at most once per message
// when the recipient has no live connection. Implementations are
// best-effort; failures are logged by the caller and never retried
// synchronously.
type Notifier interface {
	NotifyNewMessage(recipientID, senderName string, message *modelChat.Message) error
}

// StoreNotifier persists a notification row for an out-of-band delivery
// worker to pick up.
type StoreNotifier struct {
	Notifications *repositories.NotificationRepository
}

func NewStoreNotifier(notifications *repositories.NotificationRepository) *StoreNotifier {
	return &StoreNotifier{Notifications: notifications}
}

func (n *StoreNotifier) NotifyNewMessage(recipientID, senderName string, message *modelChat.Message) error {
	payload, err := json.Marshal(map[string]interface{}{
		"conversation_id": message.ConversationID,
		"message_id":      message.ID,
		"sender_id":       message.SenderID,
		"sender_name":     senderName,
		"preview":         preview(message),
	})
	if err != nil {
		return err
	}

	notification := &models.Notification{
		UserID:  recipientID,
		Type:    "new_message",
		Title:   senderName,
		Message: preview(message),
		Data:    datatypes.JSON(payload),
	}
	if err := n.Notifications.Create(notification); err != nil {
		return apperrors.Unavailable(err, "push")
	}

	logger.Debug("push notification queued",
		"recipient_id", recipientID,
		"message_id", message.ID,
	)
	return nil
}

func preview(message *modelChat.Message) string {
	if message.IsEncrypted {
		return "New message"
	}
	if message.Body != nil && *message.Body != "" {
		body := *message.Body
		if len(body) > 120 {
			body = body[:120]
		}
		return body
	}
	switch message.Type {
	case modelChat.MessageTypeImage:
		return "Sent a photo"
	case modelChat.MessageTypeVideo:
		return "Sent a video"
	case modelChat.MessageTypeVoice:
		return "Sent a voice message"
	default:
		return "Sent a file"
	}
}

// NopNotifier is wired when push delivery is disabled in config.
type NopNotifier struct{}

func (NopNotifier) NotifyNewMessage(string, string, *modelChat.Message) error { return nil }
