// Package messaging provides the outbound messaging capabilities used to alert
// emergency contacts: SMS and voice through Twilio, WhatsApp through whatsmeow,
// and a log-only sender for development.
package messaging

import (
	"context"
	"errors"
	"strings"

	"github.com/BTreeMap/SafeSignal/internal/models"
)

// ErrServiceStopped is returned when sending through a stopped service.
var ErrServiceStopped = errors.New("messaging service stopped")

// Sender delivers a text message to one recipient.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Caller places a voice call that reads message aloud to one recipient.
type Caller interface {
	PlaceCall(ctx context.Context, to string, message string) error
}

// CanonicalizeRecipient strips formatting characters from a phone number and
// validates the result. A leading '+' is preserved.
func CanonicalizeRecipient(recipient string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(recipient) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", models.ErrInvalidPhoneNumber
		}
	}
	canonical := b.String()
	if err := models.ValidatePhoneNumber(canonical); err != nil {
		return "", err
	}
	return canonical, nil
}
