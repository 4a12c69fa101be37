package trigger

import (
	"testing"
	"time"

	"github.com/BTreeMap/SafeSignal/internal/models"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(ms int) time.Time { return t0.Add(time.Duration(ms) * time.Millisecond) }

func TestDetector_ButtonSequenceMatches(t *testing.T) {
	d, warnings := NewDetector([]models.TriggerPattern{
		models.ButtonSequence(3*time.Second, models.TokenVolumeUp, models.TokenVolumeDown, models.TokenVolumeUp),
	})
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}

	// Leading noise must not prevent the suffix from matching.
	inputs := []models.InputToken{models.TokenVolumeDown, models.TokenVolumeUp, models.TokenVolumeDown}
	for i, tok := range inputs {
		if _, fired := d.Observe(tok, at(i*200)); fired {
			t.Fatalf("fired early at token %d", i)
		}
	}
	ev, fired := d.Observe(models.TokenVolumeUp, at(800))
	if !fired {
		t.Fatal("expected sequence to fire")
	}
	if ev.Kind != models.TriggerButtonSequence || !ev.FiredAt.Equal(at(800)) {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestDetector_ButtonSequenceWindowExpiry(t *testing.T) {
	d, _ := NewDetector([]models.TriggerPattern{
		models.ButtonSequence(time.Second, models.TokenVolumeUp, models.TokenVolumeUp),
	})
	d.Observe(models.TokenVolumeUp, at(0))
	if _, fired := d.Observe(models.TokenVolumeUp, at(1500)); fired {
		t.Fatal("tokens outside the window must not match")
	}
	if _, fired := d.Observe(models.TokenVolumeUp, at(1900)); !fired {
		t.Fatal("fresh pair inside the window should match")
	}
}

func TestDetector_ClearsAfterMatch(t *testing.T) {
	d, _ := NewDetector([]models.TriggerPattern{
		models.ButtonSequence(5*time.Second, models.TokenVolumeUp, models.TokenVolumeUp),
	})
	d.Observe(models.TokenVolumeUp, at(0))
	if _, fired := d.Observe(models.TokenVolumeUp, at(100)); !fired {
		t.Fatal("expected first match")
	}
	// The third press would complete a suffix with the second one if the buffer were kept.
	if _, fired := d.Observe(models.TokenVolumeUp, at(200)); fired {
		t.Fatal("same gesture must not fire twice")
	}
}

func TestDetector_ShakeCount(t *testing.T) {
	d, _ := NewDetector([]models.TriggerPattern{models.ShakeCount(3, time.Second)})

	d.Observe(models.TokenShake, at(0))
	d.Observe(models.TokenShake, at(500))
	// Gap longer than the window resets the counter.
	if _, fired := d.Observe(models.TokenShake, at(2000)); fired {
		t.Fatal("counter should have reset after the gap")
	}
	d.Observe(models.TokenShake, at(2300))
	ev, fired := d.Observe(models.TokenShake, at(2600))
	if !fired || ev.Kind != models.TriggerShakeCount {
		t.Fatalf("expected shake trigger, got fired=%v ev=%+v", fired, ev)
	}
}

func TestDetector_PowerPressIgnoresOtherTokens(t *testing.T) {
	d, _ := NewDetector([]models.TriggerPattern{models.PowerPressCount(2, time.Second)})
	d.Observe(models.TokenPowerPress, at(0))
	d.Observe(models.TokenShake, at(100))
	d.Observe("tap", at(150))
	if _, fired := d.Observe(models.TokenPowerPress, at(200)); !fired {
		t.Fatal("unrelated tokens must not disturb the power press counter")
	}
}

func TestDetector_SkipsMalformedPatterns(t *testing.T) {
	d, warnings := NewDetector([]models.TriggerPattern{
		models.ShakeCount(0, time.Second),
		models.PowerPressCount(2, time.Second),
	})
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(warnings))
	}
	if len(d.Patterns()) != 1 {
		t.Fatalf("expected 1 active pattern, got %d", len(d.Patterns()))
	}
}
