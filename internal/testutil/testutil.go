// Package testutil provides common test utilities and helpers for SafeSignal tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/BTreeMap/SafeSignal/internal/geo"
	"github.com/BTreeMap/SafeSignal/internal/models"
)

// TB is the subset of testing.TB used by the assertion helpers.
type TB interface {
	Helper()
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t TB, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
		return nil
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Errorf("response missing or invalid 'status' field")
	}
	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	}
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// SeedContacts saves contacts into a contact store and returns them with IDs.
func SeedContacts(t *testing.T, s interface {
	SaveContact(models.EmergencyContact) (models.EmergencyContact, error)
}, contacts ...models.EmergencyContact) []models.EmergencyContact {
	t.Helper()
	out := make([]models.EmergencyContact, 0, len(contacts))
	for _, c := range contacts {
		saved, err := s.SaveContact(c)
		if err != nil {
			t.Fatalf("failed to seed contact %q: %v", c.Name, err)
		}
		out = append(out, saved)
	}
	return out
}

// Contact builds an SMS-enabled contact.
func Contact(name, phone string, primary bool) models.EmergencyContact {
	return models.EmergencyContact{Name: name, PhoneNumber: phone, IsPrimary: primary, EnableSMS: true, EnableLiveLocation: true}
}

// BlockingLocator never produces a fix; it waits for its context.
type BlockingLocator struct{}

func (BlockingLocator) Locate(ctx context.Context) (*models.Location, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// SequenceLocator returns its locations in order and repeats the last one.
type SequenceLocator struct {
	mu    sync.Mutex
	locs  []models.Location
	calls int
}

// NewSequenceLocator creates a SequenceLocator.
func NewSequenceLocator(locs ...models.Location) *SequenceLocator {
	return &SequenceLocator{locs: locs}
}

func (s *SequenceLocator) Locate(ctx context.Context) (*models.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.locs) == 0 {
		return nil, models.ErrLocationUnavailable
	}
	i := s.calls
	if i >= len(s.locs) {
		i = len(s.locs) - 1
	}
	s.calls++
	loc := s.locs[i]
	return &loc, nil
}

// Calls returns how many fixes were requested.
func (s *SequenceLocator) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// FixedVitals reports constant vitals.
type FixedVitals geo.Vitals

func (v FixedVitals) ReadVitals(ctx context.Context) (geo.Vitals, error) {
	return geo.Vitals(v), nil
}
