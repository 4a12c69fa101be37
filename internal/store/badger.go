package store

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/BTreeMap/SafeSignal/internal/models"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/google/uuid"
)

var (
	eventPrefix   = []byte("event/")
	contactPrefix = []byte("contact/")
	eventSeqKey   = []byte("seq/event")
	contactSeqKey = []byte("seq/contact")
)

// badgerContact adds the insertion position used for ordering.
type badgerContact struct {
	Contact  models.EmergencyContact
	Position uint64
}

// BadgerStore is an embedded key-value store. Events are keyed by big-endian ID
// so iteration order is ID order.
type BadgerStore struct {
	db         *badger.DB
	eventSeq   *badger.Sequence
	contactSeq *badger.Sequence
}

// NewBadgerStore opens (or creates) a Badger database in the configured directory.
func NewBadgerStore(opts ...Option) (*BadgerStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("badger directory not set")
	}

	bopts := badger.DefaultOptions(cfg.DSN).
		WithCompression(options.ZSTD).
		WithNumVersionsToKeep(1).
		WithSyncWrites(true).
		WithLogger(nil)
	db, err := badger.Open(bopts)
	if err != nil {
		slog.Error("BadgerStore failed to open database", "error", err, "dir", cfg.DSN)
		return nil, fmt.Errorf("database error: %w", err)
	}

	eventSeq, err := db.GetSequence(eventSeqKey, 16)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open event sequence: %w", err)
	}
	contactSeq, err := db.GetSequence(contactSeqKey, 16)
	if err != nil {
		eventSeq.Release()
		db.Close()
		return nil, fmt.Errorf("failed to open contact sequence: %w", err)
	}
	slog.Info("BadgerStore opened", "dir", cfg.DSN)
	return &BadgerStore{db: db, eventSeq: eventSeq, contactSeq: contactSeq}, nil
}

func eventKey(id int64) []byte {
	key := make([]byte, len(eventPrefix)+8)
	copy(key, eventPrefix)
	binary.BigEndian.PutUint64(key[len(eventPrefix):], uint64(id))
	return key
}

func contactKey(id string) []byte {
	return append(append([]byte{}, contactPrefix...), id...)
}

func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (s *BadgerStore) AppendEvent(ev models.SOSEvent) (models.SOSEvent, error) {
	next, err := s.eventSeq.Next()
	if err != nil {
		return ev, fmt.Errorf("failed to allocate event id: %w", err)
	}
	// Sequences start at zero; IDs start at one.
	ev.ID = int64(next) + 1
	val, err := encode(ev)
	if err != nil {
		return ev, fmt.Errorf("failed to encode sos event: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(eventKey(ev.ID), val)
	}); err != nil {
		slog.Error("BadgerStore AppendEvent failed", "error", err)
		return ev, fmt.Errorf("failed to write sos event: %w", err)
	}
	slog.Debug("BadgerStore AppendEvent succeeded", "eventID", ev.ID)
	return ev, nil
}

func (s *BadgerStore) UpdateEventStatus(id int64, status models.EventStatus, resolvedAt time.Time) error {
	return s.db.Update(func(txn *badger.Txn) error {
		ev, err := getEvent(txn, id)
		if err != nil {
			return err
		}
		if err := checkTransition(ev.Status, status); err != nil {
			return err
		}
		ev.Status = status
		ev.ResolvedAt = &resolvedAt
		val, err := encode(ev)
		if err != nil {
			return err
		}
		return txn.Set(eventKey(id), val)
	})
}

func getEvent(txn *badger.Txn, id int64) (models.SOSEvent, error) {
	var ev models.SOSEvent
	item, err := txn.Get(eventKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ev, fmt.Errorf("%w: id %d", models.ErrEventNotFound, id)
	}
	if err != nil {
		return ev, err
	}
	err = item.Value(func(val []byte) error { return decode(val, &ev) })
	return ev, err
}

func (s *BadgerStore) GetEvent(id int64) (*models.SOSEvent, error) {
	var ev models.SOSEvent
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		ev, err = getEvent(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (s *BadgerStore) ListEvents() ([]models.SOSEvent, error) {
	var events []models.SOSEvent
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(eventPrefix); it.ValidForPrefix(eventPrefix); it.Next() {
			var ev models.SOSEvent
			if err := it.Item().Value(func(val []byte) error { return decode(val, &ev) }); err != nil {
				return fmt.Errorf("sos event decode error: %w", err)
			}
			events = append(events, ev)
		}
		return nil
	})
	return events, err
}

func (s *BadgerStore) SaveContact(c models.EmergencyContact) (models.EmergencyContact, error) {
	if err := c.Validate(); err != nil {
		return c, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		all, err := listContacts(txn)
		if err != nil {
			return err
		}
		record := badgerContact{Contact: c}
		found := false
		for _, existing := range all {
			if existing.Contact.ID == c.ID {
				record.Position = existing.Position
				record.Contact.CreatedAt = existing.Contact.CreatedAt
				found = true
				continue
			}
			if c.IsPrimary && existing.Contact.IsPrimary {
				existing.Contact.IsPrimary = false
				if err := putContact(txn, existing); err != nil {
					return err
				}
			}
		}
		if !found {
			pos, err := s.contactSeq.Next()
			if err != nil {
				return err
			}
			record.Position = pos
			if record.Contact.CreatedAt.IsZero() {
				record.Contact.CreatedAt = time.Now()
			}
		}
		c = record.Contact
		return putContact(txn, record)
	})
	if err != nil {
		slog.Error("BadgerStore SaveContact failed", "error", err, "contactID", c.ID)
		return c, err
	}
	return c, nil
}

func putContact(txn *badger.Txn, rec badgerContact) error {
	val, err := encode(rec)
	if err != nil {
		return err
	}
	return txn.Set(contactKey(rec.Contact.ID), val)
}

func listContacts(txn *badger.Txn) ([]badgerContact, error) {
	var out []badgerContact
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	for it.Seek(contactPrefix); it.ValidForPrefix(contactPrefix); it.Next() {
		var rec badgerContact
		if err := it.Item().Value(func(val []byte) error { return decode(val, &rec) }); err != nil {
			return nil, fmt.Errorf("contact decode error: %w", err)
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *BadgerStore) ListContacts() ([]models.EmergencyContact, error) {
	var contacts []models.EmergencyContact
	err := s.db.View(func(txn *badger.Txn) error {
		all, err := listContacts(txn)
		for _, rec := range all {
			contacts = append(contacts, rec.Contact)
		}
		return err
	})
	return contacts, err
}

func (s *BadgerStore) DeleteContact(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(contactKey(id)); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", models.ErrContactNotFound, id)
		} else if err != nil {
			return err
		}
		return txn.Delete(contactKey(id))
	})
}

// Close releases the sequences and closes the database.
func (s *BadgerStore) Close() error {
	var errs []error
	if err := s.eventSeq.Release(); err != nil {
		errs = append(errs, err)
	}
	if err := s.contactSeq.Release(); err != nil {
		errs = append(errs, err)
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
