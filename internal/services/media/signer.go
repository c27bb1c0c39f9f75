package media

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"

	modelChat "messenger_backend/internal/models/chat"
	"messenger_backend/pkg/apperrors"
)

// Signer produces time-limited signed media URLs. Raw URLs are what gets
// persisted; signing happens on every outbound emission.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), ttl: ttl}
}

func (s *Signer) signature(path string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d", path, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignURL appends an expiry and an HMAC signature to the URL.
func (s *Signer) SignURL(rawURL string, now time.Time) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", apperrors.ValidationError("Invalid media URL")
	}

	expires := now.Add(s.ttl).Unix()
	q := u.Query()
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", s.signature(u.Path, expires))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Verify checks the signature and expiry of a signed URL.
func (s *Signer) Verify(rawURL string, now time.Time) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return apperrors.ValidationError("Invalid media URL")
	}

	q := u.Query()
	expires, err := strconv.ParseInt(q.Get("expires"), 10, 64)
	if err != nil {
		return apperrors.Forbidden("Missing or malformed media URL expiry")
	}
	if now.Unix() > expires {
		return apperrors.Forbidden("Media URL expired")
	}

	expected := s.signature(u.Path, expires)
	if !hmac.Equal([]byte(expected), []byte(q.Get("sig"))) {
		return apperrors.Forbidden("Invalid media URL signature")
	}
	return nil
}

// SignMessageMedia returns a copy of the message with its media URL
// replaced by the signed form. The stored row is never modified.
func (s *Signer) SignMessageMedia(message modelChat.Message) modelChat.Message {
	if message.MediaURL == nil || *message.MediaURL == "" {
		return message
	}
	signed, err := s.SignURL(*message.MediaURL, time.Now())
	if err != nil {
		// Unsignable URLs go out unsigned rather than blocking delivery.
		return message
	}
	message.MediaURL = &signed
	return message
}
