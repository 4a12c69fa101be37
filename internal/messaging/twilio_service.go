package messaging

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Opts holds configuration options for the Twilio client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	WhatsApp   bool
}

// Option defines a configuration option for the Twilio client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the sending phone number in E.164 format.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// WithWhatsApp routes messages through Twilio's WhatsApp channel instead of SMS.
func WithWhatsApp() Option {
	return func(o *Opts) { o.WhatsApp = true }
}

// whatsAppPrefix marks a Twilio address as a WhatsApp number.
const whatsAppPrefix = "whatsapp:"

// TwilioService sends SMS and places voice calls through the Twilio REST API.
type TwilioService struct {
	client   *twilio.RestClient
	from     string
	whatsApp bool
}

// NewTwilioService creates a Twilio-backed Sender and Caller. Options fall back to
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER.
func NewTwilioService(opts ...Option) (*TwilioService, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromNumber_set", cfg.FromNumber != "",
		"whatsApp", cfg.WhatsApp)

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	from, err := CanonicalizeRecipient(strings.TrimPrefix(cfg.FromNumber, whatsAppPrefix))
	if err != nil {
		return nil, fmt.Errorf("invalid from number %q: %w", cfg.FromNumber, err)
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioService{client: client, from: from, whatsApp: cfg.WhatsApp}, nil
}

// messageAddress formats a canonical number for the configured message channel.
func (s *TwilioService) messageAddress(number string) string {
	if s.whatsApp {
		return whatsAppPrefix + number
	}
	return number
}

// SendMessage sends an SMS, or a WhatsApp message when WithWhatsApp was set.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	canonicalTo, err := CanonicalizeRecipient(to)
	if err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(s.messageAddress(canonicalTo))
	params.SetFrom(s.messageAddress(s.from))
	params.SetBody(body)

	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendMessage failed", "to", canonicalTo, "whatsApp", s.whatsApp, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", canonicalTo, err)
	}
	if resp != nil && resp.Sid != nil {
		slog.Debug("Twilio message sent", "to", canonicalTo, "whatsApp", s.whatsApp, "sid", *resp.Sid)
	}
	return nil
}

// PlaceCall places a voice call that reads message aloud twice.
func (s *TwilioService) PlaceCall(ctx context.Context, to string, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	canonicalTo, err := CanonicalizeRecipient(to)
	if err != nil {
		return err
	}

	params := &twilioApi.CreateCallParams{}
	params.SetTo(canonicalTo)
	params.SetFrom(s.from)
	params.SetTwiml(SayTwiML(message, 2))

	if _, err := s.client.Api.CreateCall(params); err != nil {
		slog.Error("Twilio PlaceCall failed", "to", canonicalTo, "error", err)
		return fmt.Errorf("failed to call %s: %w", canonicalTo, err)
	}
	slog.Debug("Twilio call placed", "to", canonicalTo)
	return nil
}

// SayTwiML builds a TwiML document that speaks message loop times.
// Map links are dropped since they are meaningless when read aloud.
func SayTwiML(message string, loop int) string {
	var spoken []string
	for _, field := range strings.Fields(message) {
		if strings.HasPrefix(field, "https://") {
			continue
		}
		spoken = append(spoken, field)
	}
	var escaped strings.Builder
	_ = xml.EscapeText(&escaped, []byte(strings.Join(spoken, " ")))
	return fmt.Sprintf(`<Response><Say loop="%d">%s</Say></Response>`, loop, escaped.String())
}
