package messaging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// JIDSuffix is the WhatsApp JID server for regular users.
const JIDSuffix = "s.whatsapp.net"

// WhatsAppOpts holds configuration for the WhatsApp sender.
type WhatsAppOpts struct {
	DBDriver string // sqlite3 or postgres
	DBDSN    string // whatsmeow device store
	QRPath   string // where to write the login QR code; stdout if empty
}

// WhatsAppService delivers alerts as WhatsApp messages through whatsmeow.
type WhatsAppService struct {
	client *whatsmeow.Client
}

// NewWhatsAppService connects to WhatsApp, running the QR login flow when the
// device store has no session yet.
func NewWhatsAppService(ctx context.Context, opts WhatsAppOpts) (*WhatsAppService, error) {
	if opts.DBDSN == "" {
		return nil, fmt.Errorf("whatsapp device store DSN not set")
	}
	driver := opts.DBDriver
	if driver == "" {
		driver = "sqlite3"
	}
	if driver == "sqlite3" && !strings.Contains(opts.DBDSN, "foreign_keys") {
		slog.Warn("WhatsApp SQLite device store without foreign keys; consider '?_foreign_keys=on'", "dsn", opts.DBDSN)
	}

	container, err := sqlstore.New(ctx, driver, opts.DBDSN, waLog.Stdout("Database", "WARN", true))
	if err != nil {
		return nil, fmt.Errorf("failed to open whatsapp device store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load whatsapp device: %w", err)
	}

	client := whatsmeow.NewClient(device, waLog.Stdout("Client", "WARN", true))
	if client.Store.ID != nil {
		if err := client.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to whatsapp: %w", err)
		}
		slog.Info("WhatsApp session restored")
		return &WhatsAppService{client: client}, nil
	}

	slog.Info("WhatsApp login required; starting QR code flow")
	qrChan, _ := client.GetQRChannel(ctx)
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to whatsapp during login: %w", err)
	}
	out := io.Writer(os.Stdout)
	if opts.QRPath != "" {
		f, err := os.Create(opts.QRPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create QR file: %w", err)
		}
		defer f.Close()
		out = f
	}
	for evt := range qrChan {
		if evt.Event == "code" {
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, out)
			continue
		}
		slog.Debug("WhatsApp login event", "event", evt.Event)
	}
	return &WhatsAppService{client: client}, nil
}

// SendMessage sends a WhatsApp text message.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	if s.client == nil || !s.client.IsConnected() {
		return ErrServiceStopped
	}
	canonicalTo, err := CanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	jid := types.NewJID(strings.TrimPrefix(canonicalTo, "+"), JIDSuffix)
	if _, err := s.client.SendMessage(ctx, jid, &waE2E.Message{Conversation: &body}); err != nil {
		slog.Error("WhatsApp SendMessage failed", "to", canonicalTo, "error", err)
		return fmt.Errorf("failed to send whatsapp message to %s: %w", canonicalTo, err)
	}
	slog.Debug("WhatsApp message sent", "to", canonicalTo)
	return nil
}

// Stop disconnects from WhatsApp.
func (s *WhatsAppService) Stop() {
	if s.client != nil {
		s.client.Disconnect()
	}
}
