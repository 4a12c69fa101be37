package testutil

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BTreeMap/SafeSignal/internal/models"
	"github.com/BTreeMap/SafeSignal/internal/store"
)

// mockTB records failures instead of failing the enclosing test.
type mockTB struct {
	failed bool
	msgs   []string
}

func (m *mockTB) Helper() {}

func (m *mockTB) Errorf(format string, args ...interface{}) {
	m.failed = true
	m.msgs = append(m.msgs, fmt.Sprintf(format, args...))
}

func (m *mockTB) Fatalf(format string, args ...interface{}) {
	m.Errorf(format, args...)
}

func TestAssertHTTPStatus(t *testing.T) {
	tests := []struct {
		name       string
		expected   int
		actual     int
		shouldFail bool
	}{
		{"matching status codes", 200, 200, false},
		{"different status codes", 200, 404, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockTB{}
			AssertHTTPStatus(m, tt.expected, tt.actual, "ctx")
			if m.failed != tt.shouldFail {
				t.Errorf("failed = %v, want %v (%v)", m.failed, tt.shouldFail, m.msgs)
			}
		})
	}
}

func TestAssertJSONResponse(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		expected   string
		shouldFail bool
	}{
		{"matching status", `{"status":"ok"}`, "ok", false},
		{"different status", `{"status":"error"}`, "ok", true},
		{"missing status", `{"message":"x"}`, "ok", true},
		{"invalid json", `{`, "ok", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			rr.WriteString(tt.body)
			m := &mockTB{}
			AssertJSONResponse(m, rr, tt.expected)
			if m.failed != tt.shouldFail {
				t.Errorf("failed = %v, want %v (%v)", m.failed, tt.shouldFail, m.msgs)
			}
		})
	}
}

func TestCreateHTTPRequest(t *testing.T) {
	req := CreateHTTPRequest(t, "POST", "/v1/trigger", map[string]bool{"silent": true})
	if req.Method != "POST" || req.URL.Path != "/v1/trigger" {
		t.Fatalf("unexpected request %s %s", req.Method, req.URL.Path)
	}
	if req.ContentLength == 0 {
		t.Error("expected a body")
	}
}

func TestSeedContacts(t *testing.T) {
	s := store.NewInMemoryStore()
	got := SeedContacts(t, s, Contact("A", "+1555", true), Contact("B", "+1556", false))
	if len(got) != 2 || got[0].ID == "" || got[1].ID == "" {
		t.Fatalf("unexpected seeded contacts %+v", got)
	}
}

func TestLocators(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := (BlockingLocator{}).Locate(ctx); err == nil {
		t.Error("BlockingLocator should fail when its context ends")
	}

	seq := NewSequenceLocator(models.Location{Latitude: 1}, models.Location{Latitude: 2})
	for _, want := range []float64{1, 2, 2} {
		loc, err := seq.Locate(context.Background())
		if err != nil || loc.Latitude != want {
			t.Fatalf("Locate() = %v, %v; want latitude %v", loc, err, want)
		}
	}
	if seq.Calls() != 3 {
		t.Errorf("Calls() = %d", seq.Calls())
	}
}
