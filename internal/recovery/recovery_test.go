package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/SafeSignal/internal/models"
	"github.com/BTreeMap/SafeSignal/internal/store"
)

type recordingRecoverable struct {
	calls int
	err   error
}

func (r *recordingRecoverable) RecoverState(ctx context.Context, registry *Registry) error {
	r.calls++
	return r.err
}

var base = time.Date(2026, 5, 4, 21, 30, 0, 0, time.UTC)

func seedEvents(t *testing.T, s *store.InMemoryStore) {
	t.Helper()
	for i, offset := range []time.Duration{2 * time.Hour, 0, time.Hour} {
		ev, err := s.AppendEvent(models.NewSOSEvent(models.TriggerManual, models.DeviceSnapshot{}, base.Add(offset)))
		require.NoError(t, err)
		if i == 1 {
			require.NoError(t, s.UpdateEventStatus(ev.ID, models.EventStatusResolved, base.Add(time.Minute)))
		}
	}
}

func TestOpenEventsOldestFirst(t *testing.T) {
	s := store.NewInMemoryStore()
	seedEvents(t, s)

	open, err := NewRegistry(s, nil).OpenEvents()
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, int64(3), open[0].ID)
	assert.Equal(t, int64(1), open[1].ID)
}

func TestCloseEvent(t *testing.T) {
	s := store.NewInMemoryStore()
	seedEvents(t, s)
	reg := NewRegistry(s, func() time.Time { return base.Add(3 * time.Hour) })

	require.NoError(t, reg.CloseEvent(1, models.EventStatusCancelled))
	ev, err := s.GetEvent(1)
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusCancelled, ev.Status)
	require.NotNil(t, ev.ResolvedAt)
	assert.Equal(t, base.Add(3*time.Hour), *ev.ResolvedAt)

	err = reg.CloseEvent(2, models.EventStatusCancelled)
	assert.ErrorIs(t, err, models.ErrIllegalStatusTransition)
}

func TestRecoverAllContinuesAfterFailure(t *testing.T) {
	m := NewManager(store.NewInMemoryStore(), nil)
	failing := &recordingRecoverable{err: errors.New("boom")}
	ok := &recordingRecoverable{}
	m.Register(failing)
	m.Register(ok)

	err := m.RecoverAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 errors out of 2")
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls)
}

func TestRecoverAllNoComponents(t *testing.T) {
	m := NewManager(store.NewInMemoryStore(), nil)
	assert.NoError(t, m.RecoverAll(context.Background()))
	assert.NotNil(t, m.Registry())
}
