package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/BTreeMap/SafeSignal/internal/models"
	"github.com/google/uuid"
)

// InMemoryStore keeps events and contacts in process memory.
type InMemoryStore struct {
	mu       sync.RWMutex
	events   []models.SOSEvent
	nextID   int64
	contacts []models.EmergencyContact
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) AppendEvent(ev models.SOSEvent) (models.SOSEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	ev.ID = s.nextID
	s.events = append(s.events, ev)
	return ev, nil
}

func (s *InMemoryStore) UpdateEventStatus(id int64, status models.EventStatus, resolvedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		if s.events[i].ID != id {
			continue
		}
		if err := checkTransition(s.events[i].Status, status); err != nil {
			return err
		}
		s.events[i].Status = status
		s.events[i].ResolvedAt = &resolvedAt
		return nil
	}
	return fmt.Errorf("%w: id %d", models.ErrEventNotFound, id)
}

func (s *InMemoryStore) GetEvent(id int64) (*models.SOSEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range s.events {
		if ev.ID == id {
			return &ev, nil
		}
	}
	return nil, fmt.Errorf("%w: id %d", models.ErrEventNotFound, id)
}

func (s *InMemoryStore) ListEvents() ([]models.SOSEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.SOSEvent(nil), s.events...), nil
}

func (s *InMemoryStore) SaveContact(c models.EmergencyContact) (models.EmergencyContact, error) {
	if err := c.Validate(); err != nil {
		return c, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	if c.ID == "" {
		c.ID = uuid.NewString()
	} else {
		for i := range s.contacts {
			if s.contacts[i].ID == c.ID {
				idx = i
				break
			}
		}
	}
	if c.IsPrimary {
		for i := range s.contacts {
			s.contacts[i].IsPrimary = false
		}
	}
	if idx >= 0 {
		c.CreatedAt = s.contacts[idx].CreatedAt
		s.contacts[idx] = c
		return c, nil
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	s.contacts = append(s.contacts, c)
	return c, nil
}

func (s *InMemoryStore) ListContacts() ([]models.EmergencyContact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.EmergencyContact(nil), s.contacts...), nil
}

func (s *InMemoryStore) DeleteContact(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.contacts {
		if s.contacts[i].ID == id {
			s.contacts = append(s.contacts[:i], s.contacts[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", models.ErrContactNotFound, id)
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
