package messaging

import (
	"context"
	"log/slog"
)

// LogService writes alerts to the structured log instead of delivering them.
// It is intended for development hosts without a messaging account.
type LogService struct{}

// NewLogService creates a LogService.
func NewLogService() *LogService {
	return &LogService{}
}

// SendMessage logs the message.
func (LogService) SendMessage(ctx context.Context, to string, body string) error {
	slog.Info("LogService message", "to", to, "body", body)
	return nil
}

// PlaceCall logs the call.
func (LogService) PlaceCall(ctx context.Context, to string, message string) error {
	slog.Info("LogService call", "to", to, "message", message)
	return nil
}
