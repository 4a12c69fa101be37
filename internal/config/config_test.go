package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BTreeMap/SafeSignal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
settings:
  countdown_seconds: 10
  silent_mode: true
  max_location_updates: 0
  include_personal_info: true
triggers:
  - kind: button_sequence
    sequence: [up, up, down]
    window: 2s
  - kind: shake_count
    count: 0
    window: 1s
  - kind: power_press_count
    count: 4
    window: 3s
contacts:
  - name: Mom
    phone_number: "+1 (555) 010-0001"
    is_primary: true
    enable_sms: true
  - name: Dad
    phone_number: "555.010.0002"
    is_primary: true
    enable_sms: true
  - name: ""
    phone_number: "+15550003"
  - name: Bad
    phone_number: "call me"
personal_info:
  full_name: Dana Doe
  blood_type: O-
`

func TestParse(t *testing.T) {
	cfg, warnings, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Settings.CountdownSeconds)
	assert.True(t, cfg.Settings.SilentMode)
	assert.True(t, cfg.Settings.IncludePersonalInfo)
	assert.Equal(t, models.DefaultMaxLocationUpdates, cfg.Settings.MaxLocationUpdates)
	assert.Equal(t, models.DefaultFollowUpIntervalMinutes, cfg.Settings.FollowUpIntervalMinutes, "missing keys keep defaults")
	assert.Equal(t, models.DefaultMessageTemplate, cfg.Settings.MessageTemplate)

	require.Len(t, cfg.Triggers, 2)
	assert.Equal(t, []models.InputToken{models.TokenVolumeUp, models.TokenVolumeUp, models.TokenVolumeDown}, cfg.Triggers[0].Sequence)
	assert.Equal(t, 2*time.Second, cfg.Triggers[0].Window)
	assert.Equal(t, models.TriggerPowerPressCount, cfg.Triggers[1].Kind)

	require.Len(t, cfg.Contacts, 2)
	assert.Equal(t, "+15550100001", cfg.Contacts[0].PhoneNumber)
	assert.True(t, cfg.Contacts[0].IsPrimary)
	assert.Equal(t, "5550100002", cfg.Contacts[1].PhoneNumber)
	assert.False(t, cfg.Contacts[1].IsPrimary)

	assert.Equal(t, "O-", cfg.Personal.BloodType)

	// max_location_updates, one trigger, demoted primary, two contacts.
	assert.Len(t, warnings, 5)
}

func TestParseInvalidYAML(t *testing.T) {
	_, _, err := Parse([]byte("settings: [unclosed"))
	assert.Error(t, err)
}

func TestParseAllTriggersInvalid(t *testing.T) {
	cfg, warnings, err := Parse([]byte("triggers:\n  - kind: wave\n"))
	require.NoError(t, err)
	assert.Equal(t, models.DefaultTriggerPatterns(), cfg.Triggers)
	assert.Len(t, warnings, 2)
}

func TestLoad(t *testing.T) {
	cfg, warnings, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, Default(), cfg)

	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("settings:\n  countdown_seconds: 0\n"), 0o600))
	cfg, warnings, err = Load(path)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 0, cfg.Settings.CountdownSeconds)
	assert.Equal(t, models.DefaultTriggerPatterns(), cfg.Triggers)
}

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"yes", false, true},
		{"ON", false, true},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("SAFESIGNAL_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("SAFESIGNAL_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseFloatEnv(t *testing.T) {
	t.Setenv("SAFESIGNAL_TEST_LAT", "37.7749")
	v, ok := ParseFloatEnv("SAFESIGNAL_TEST_LAT")
	assert.True(t, ok)
	assert.Equal(t, 37.7749, v)

	t.Setenv("SAFESIGNAL_TEST_LAT", "north")
	_, ok = ParseFloatEnv("SAFESIGNAL_TEST_LAT")
	assert.False(t, ok)

	t.Setenv("SAFESIGNAL_TEST_ADDR", "")
	assert.Equal(t, ":8080", GetEnv("SAFESIGNAL_TEST_ADDR", ":8080"))
}
