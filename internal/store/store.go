// Package store provides storage backends for SafeSignal.
//
// It persists the SOS event log and the emergency contact book. Backends are an
// in-memory store, SQLite, PostgreSQL and an embedded Badger key-value store.
package store

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/SafeSignal/internal/models"
)

// EventStore is the durable append/update log of emergency activations.
// Records are never deleted and their status only moves Active -> terminal.
type EventStore interface {
	// AppendEvent stores a new event and returns it with its assigned ID.
	// IDs increase monotonically.
	AppendEvent(ev models.SOSEvent) (models.SOSEvent, error)
	// UpdateEventStatus moves an Active event to Resolved or Cancelled.
	UpdateEventStatus(id int64, status models.EventStatus, resolvedAt time.Time) error
	// GetEvent returns one event or ErrEventNotFound.
	GetEvent(id int64) (*models.SOSEvent, error)
	// ListEvents returns every event ordered by ID.
	ListEvents() ([]models.SOSEvent, error)
}

// ContactStore holds the emergency contact book.
type ContactStore interface {
	// SaveContact inserts or updates a contact. Saving a primary contact demotes
	// every other contact, so at most one contact is primary.
	SaveContact(c models.EmergencyContact) (models.EmergencyContact, error)
	// ListContacts returns contacts in insertion order.
	ListContacts() ([]models.EmergencyContact, error)
	// DeleteContact removes a contact or returns ErrContactNotFound.
	DeleteContact(id string) error
}

// Store is the full persistence capability.
type Store interface {
	EventStore
	ContactStore
	Close() error
}

// Backend names
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
)

// Opts holds configuration options for store backends.
type Opts struct {
	Backend string
	DSN     string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN selects SQLite at the given file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.Backend = BackendSQLite
		o.DSN = dsn
	}
}

// WithPostgresDSN selects PostgreSQL with the given connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.Backend = BackendPostgres
		o.DSN = dsn
	}
}

// WithBadgerDir selects the Badger store in the given directory.
func WithBadgerDir(dir string) Option {
	return func(o *Opts) {
		o.Backend = BackendBadger
		o.DSN = dir
	}
}

// DetectDSNType returns "postgres", "badger" or "sqlite" for a DSN.
func DetectDSNType(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"), strings.Contains(dsn, "host="):
		return BackendPostgres
	case strings.HasPrefix(dsn, "badger://"):
		return BackendBadger
	default:
		return BackendSQLite
	}
}

// OptionForDSN maps a DSN to the matching backend option.
func OptionForDSN(dsn string) Option {
	switch DetectDSNType(dsn) {
	case BackendPostgres:
		return WithPostgresDSN(dsn)
	case BackendBadger:
		return WithBadgerDir(strings.TrimPrefix(dsn, "badger://"))
	default:
		return WithSQLiteDSN(dsn)
	}
}

// New opens the configured backend, defaulting to the in-memory store.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("store.New", "backend", cfg.Backend, "DSN_set", cfg.DSN != "")
	switch cfg.Backend {
	case "", BackendMemory:
		return NewInMemoryStore(), nil
	case BackendSQLite:
		return NewSQLiteStore(opts...)
	case BackendPostgres:
		return NewPostgresStore(opts...)
	case BackendBadger:
		return NewBadgerStore(opts...)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// checkTransition validates a requested status update against the stored status.
func checkTransition(current, next models.EventStatus) error {
	if !current.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", models.ErrIllegalStatusTransition, current, next)
	}
	return nil
}
