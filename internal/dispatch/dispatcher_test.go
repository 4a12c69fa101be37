package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/SafeSignal/internal/messaging"
	"github.com/BTreeMap/SafeSignal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeContacts() []models.EmergencyContact {
	return models.OrderForDispatch([]models.EmergencyContact{
		{ID: "sibling", PhoneNumber: "+15550000001", EnableSMS: true},
		{ID: "partner", PhoneNumber: "+15550000002", EnableSMS: true, IsPrimary: true},
		{ID: "friend", PhoneNumber: "+15550000003", EnableSMS: true},
	}, models.SMSEnabled)
}

func TestDispatch_PartialFailure(t *testing.T) {
	mock := messaging.NewMockService()
	mock.FailAlways("+15550000003")
	d := NewDispatcher(mock, nil, WithRetryBackoff(time.Millisecond))

	res := d.Dispatch(context.Background(), threeContacts(), "help")

	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{"friend"}, res.FailedContactIDs)
	assert.Equal(t, 2, mock.Attempts("+15550000003"), "failed contact is retried exactly once")
	assert.Equal(t, 1, mock.Attempts("+15550000001"))
	require.Len(t, res.Outcomes, 3)
	assert.Equal(t, "partner", res.Outcomes[0].ContactID, "outcomes follow dispatch order")
}

func TestDispatch_RetrySucceeds(t *testing.T) {
	mock := messaging.NewMockService()
	mock.FailTimes("+15550000001", 1)
	d := NewDispatcher(mock, nil, WithRetryBackoff(time.Millisecond))

	res := d.Dispatch(context.Background(), threeContacts(), "help")
	assert.Equal(t, 3, res.Sent)
	assert.Zero(t, res.Failed)
	for _, o := range res.Outcomes {
		if o.ContactID == "sibling" {
			assert.Equal(t, 2, o.Attempts)
		}
	}
}

func TestDispatch_PerContactTimeout(t *testing.T) {
	mock := messaging.NewMockService()
	mock.SetDelay(time.Second)
	d := NewDispatcher(mock, nil, WithSendTimeout(20*time.Millisecond), WithRetryBackoff(time.Millisecond))

	start := time.Now()
	res := d.Dispatch(context.Background(), threeContacts(), "help")
	assert.Less(t, time.Since(start), 500*time.Millisecond, "sends run in parallel and time out")
	assert.Equal(t, 3, res.Failed)
}

// stubbornSender sleeps for delay without looking at its context, like SDK
// clients whose calls take no context.
type stubbornSender struct {
	delay time.Duration
}

func (s stubbornSender) SendMessage(_ context.Context, _, _ string) error {
	time.Sleep(s.delay)
	return nil
}

func TestDispatch_TimeoutEnforcedWhenSenderIgnoresContext(t *testing.T) {
	d := NewDispatcher(stubbornSender{delay: 2 * time.Second}, nil,
		WithSendTimeout(50*time.Millisecond), WithRetryBackoff(time.Millisecond))

	start := time.Now()
	res := d.Dispatch(context.Background(), threeContacts(), "help")
	elapsed := time.Since(start)

	assert.Less(t, elapsed, time.Second, "dispatch must not wait for a sender past its deadline")
	assert.Zero(t, res.Sent, "a send finishing after its deadline is not counted as sent")
	assert.Equal(t, 3, res.Failed)
	for _, o := range res.Outcomes {
		assert.Equal(t, MaxAttempts, o.Attempts)
		assert.Contains(t, o.Error, context.DeadlineExceeded.Error())
	}
}

func TestDispatch_NoCapability(t *testing.T) {
	d := NewDispatcher(nil, nil)
	res := d.Dispatch(context.Background(), threeContacts(), "help")
	assert.Equal(t, 3, res.Failed)
	assert.Contains(t, res.Outcomes[0].Error, "no messaging capability")
	assert.False(t, d.HasSender())
}

func TestDispatch_EmptyContacts(t *testing.T) {
	d := NewDispatcher(messaging.NewMockService(), nil)
	res := d.Dispatch(context.Background(), nil, "help")
	assert.Zero(t, res.Sent)
	assert.Zero(t, res.Failed)
}

func TestCall_UsesCaller(t *testing.T) {
	mock := messaging.NewMockService()
	var mu sync.Mutex
	var seen []string
	d := NewDispatcher(mock, mock, WithOutcomeHook(func(o models.ContactOutcome) {
		mu.Lock()
		seen = append(seen, o.ContactID)
		mu.Unlock()
	}))
	res := d.Call(context.Background(), threeContacts()[:1], "help")
	assert.Equal(t, 1, res.Sent)
	assert.Len(t, mock.Calls, 1)
	assert.Equal(t, []string{"partner"}, seen)
}
