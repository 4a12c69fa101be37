package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BTreeMap/SafeSignal/internal/models"
)

func TestCanonicalizeRecipient(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"+1 (415) 555-0100", "+14155550100", false},
		{"415.555.0100", "4155550100", false},
		{" +447700900123 ", "+447700900123", false},
		{"", "", true},
		{"call me", "", true},
		{"1+415", "", true},
	}
	for _, tt := range tests {
		got, err := CanonicalizeRecipient(tt.input)
		if tt.wantErr {
			if !errors.Is(err, models.ErrInvalidPhoneNumber) {
				t.Errorf("CanonicalizeRecipient(%q) expected ErrInvalidPhoneNumber, got %v", tt.input, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("CanonicalizeRecipient(%q) = %q, %v; want %q", tt.input, got, err, tt.want)
		}
	}
}

func TestNewTwilioService_RequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")
	if _, err := NewTwilioService(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewTwilioService(WithAccountSID("AC1"), WithAuthToken("tok"), WithFromNumber("not-a-number")); err == nil {
		t.Error("expected error for invalid from number")
	}
	if _, err := NewTwilioService(WithAccountSID("AC1"), WithAuthToken("tok"), WithFromNumber("+15005550006")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestTwilioService_WhatsAppAddress(t *testing.T) {
	svc, err := NewTwilioService(WithAccountSID("AC1"), WithAuthToken("tok"), WithFromNumber("whatsapp:+15005550006"), WithWhatsApp())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := svc.messageAddress(svc.from); got != "whatsapp:+15005550006" {
		t.Errorf("from address = %q", got)
	}

	sms, err := NewTwilioService(WithAccountSID("AC1"), WithAuthToken("tok"), WithFromNumber("+15005550006"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := sms.messageAddress("+15550001"); got != "+15550001" {
		t.Errorf("sms address = %q", got)
	}
}

func TestSayTwiML(t *testing.T) {
	got := SayTwiML("Help <now> & https://maps.google.com/?q=1,2 please", 2)
	if !strings.HasPrefix(got, `<Response><Say loop="2">`) {
		t.Errorf("unexpected twiml: %s", got)
	}
	if strings.Contains(got, "maps.google.com") {
		t.Error("links should not be spoken")
	}
	if !strings.Contains(got, "Help &lt;now&gt; &amp; please") {
		t.Errorf("text not escaped: %s", got)
	}
}

func TestMockService_FailTimes(t *testing.T) {
	m := NewMockService()
	m.FailTimes("+1", 1)
	ctx := context.Background()
	if err := m.SendMessage(ctx, "+1", "a"); !errors.Is(err, ErrMockSendFailed) {
		t.Fatalf("expected failure, got %v", err)
	}
	if err := m.SendMessage(ctx, "+1", "b"); err != nil {
		t.Fatalf("expected success on second attempt, got %v", err)
	}
	if m.Attempts("+1") != 2 || len(m.Messages()) != 1 {
		t.Errorf("unexpected mock state: attempts=%d sent=%d", m.Attempts("+1"), len(m.Messages()))
	}
}
