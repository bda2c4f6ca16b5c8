package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/provio-systems/provio/internal/models"
)

// Signer produces tamper-evidence signatures over the immutable
// identity fields of an audit event.
type Signer struct {
	secretKey []byte
}

func NewSigner(secretKey string) *Signer {
	return &Signer{secretKey: []byte(secretKey)}
}

// Sign computes the HMAC over the fields that never change after the
// event is written. Status is excluded because the pending->final
// transition is a permitted mutation.
func (s *Signer) Sign(event *models.AuditEvent) string {
	payload := event.EventID +
		event.CreatedAt.Format(time.RFC3339Nano) +
		string(event.EventType) +
		event.ActorID +
		event.Target.EntityType +
		event.Target.EntityID +
		event.RequestContext.IPAddress

	h := hmac.New(sha256.New, s.secretKey)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether the stored signature matches the event's
// immutable fields.
func (s *Signer) Verify(event *models.AuditEvent) bool {
	expected := s.Sign(event)
	return hmac.Equal([]byte(expected), []byte(event.Signature))
}
