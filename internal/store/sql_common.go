package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/SafeSignal/internal/models"
	"github.com/google/uuid"
)

const eventColumns = `id, trigger_type, latitude, longitude, accuracy, address, battery_level,
	is_charging, network_type, status, created_at, resolved_at`

const contactColumns = `id, name, phone_number, relationship, is_primary, enable_sms, enable_call,
	enable_live_location, created_at`

// sqlStore implements Store over database/sql. Queries are written with '?'
// placeholders and rebound for dialects that number their parameters.
type sqlStore struct {
	db       *sql.DB
	name     string
	numbered bool
}

func (s *sqlStore) q(query string) string {
	if !s.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) AppendEvent(ev models.SOSEvent) (models.SOSEvent, error) {
	query := s.q(`INSERT INTO sos_events (trigger_type, latitude, longitude, accuracy, address, battery_level,
		is_charging, network_type, status, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)

	var resolvedAt interface{}
	if ev.ResolvedAt != nil {
		resolvedAt = *ev.ResolvedAt
	}
	err := s.db.QueryRow(query, string(ev.TriggerType), nullFloat(ev.Latitude), nullFloat(ev.Longitude),
		nullFloat(ev.Accuracy), nilIfEmpty(ev.Address), ev.BatteryLevel, ev.IsCharging, ev.NetworkType,
		string(ev.Status), ev.CreatedAt, resolvedAt).Scan(&ev.ID)
	if err != nil {
		slog.Error(s.name+" AppendEvent failed", "error", err, "triggerType", ev.TriggerType)
		return ev, fmt.Errorf("failed to insert sos event: %w", err)
	}
	slog.Debug(s.name+" AppendEvent succeeded", "eventID", ev.ID)
	return ev, nil
}

func (s *sqlStore) UpdateEventStatus(id int64, status models.EventStatus, resolvedAt time.Time) error {
	if err := checkTransition(models.EventStatusActive, status); err != nil {
		return err
	}
	res, err := s.db.Exec(s.q(`UPDATE sos_events SET status = ?, resolved_at = ? WHERE id = ? AND status = ?`),
		string(status), resolvedAt, id, string(models.EventStatusActive))
	if err != nil {
		slog.Error(s.name+" UpdateEventStatus failed", "error", err, "eventID", id)
		return fmt.Errorf("failed to update sos event %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 1 {
		slog.Debug(s.name+" UpdateEventStatus succeeded", "eventID", id, "status", status)
		return nil
	}

	current, err := s.GetEvent(id)
	if err != nil {
		return err
	}
	return checkTransition(current.Status, status)
}

func (s *sqlStore) GetEvent(id int64) (*models.SOSEvent, error) {
	row := s.db.QueryRow(s.q(`SELECT `+eventColumns+` FROM sos_events WHERE id = ?`), id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", models.ErrEventNotFound, id)
	}
	if err != nil {
		slog.Error(s.name+" GetEvent failed", "error", err, "eventID", id)
		return nil, err
	}
	return &ev, nil
}

func (s *sqlStore) ListEvents() ([]models.SOSEvent, error) {
	rows, err := s.db.Query(`SELECT ` + eventColumns + ` FROM sos_events ORDER BY id`)
	if err != nil {
		slog.Error(s.name+" ListEvents query failed", "error", err)
		return nil, fmt.Errorf("failed to query sos events: %w", err)
	}
	defer rows.Close()

	var events []models.SOSEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		slog.Error(s.name+" ListEvents rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate sos event rows: %w", err)
	}
	slog.Debug(s.name+" ListEvents succeeded", "count", len(events))
	return events, nil
}

func (s *sqlStore) SaveContact(c models.EmergencyContact) (models.EmergencyContact, error) {
	if err := c.Validate(); err != nil {
		return c, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return c, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if c.IsPrimary {
		if _, err := tx.Exec(s.q(`UPDATE contacts SET is_primary = ? WHERE id <> ?`), false, c.ID); err != nil {
			return c, fmt.Errorf("failed to demote primary contacts: %w", err)
		}
	}

	res, err := tx.Exec(s.q(`UPDATE contacts SET name = ?, phone_number = ?, relationship = ?, is_primary = ?,
		enable_sms = ?, enable_call = ?, enable_live_location = ? WHERE id = ?`),
		c.Name, c.PhoneNumber, c.Relationship, c.IsPrimary, c.EnableSMS, c.EnableCall, c.EnableLiveLocation, c.ID)
	if err != nil {
		return c, fmt.Errorf("failed to update contact %s: %w", c.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now()
		}
		_, err = tx.Exec(s.q(`INSERT INTO contacts (id, name, phone_number, relationship, is_primary, enable_sms,
			enable_call, enable_live_location, position, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM contacts), ?)`),
			c.ID, c.Name, c.PhoneNumber, c.Relationship, c.IsPrimary, c.EnableSMS, c.EnableCall,
			c.EnableLiveLocation, c.CreatedAt)
		if err != nil {
			return c, fmt.Errorf("failed to insert contact %s: %w", c.ID, err)
		}
	} else if err := tx.QueryRow(s.q(`SELECT created_at FROM contacts WHERE id = ?`), c.ID).Scan(&c.CreatedAt); err != nil {
		return c, fmt.Errorf("failed to read contact %s: %w", c.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return c, fmt.Errorf("failed to commit contact %s: %w", c.ID, err)
	}
	slog.Debug(s.name+" SaveContact succeeded", "contactID", c.ID, "isPrimary", c.IsPrimary)
	return c, nil
}

func (s *sqlStore) ListContacts() ([]models.EmergencyContact, error) {
	rows, err := s.db.Query(`SELECT ` + contactColumns + ` FROM contacts ORDER BY position`)
	if err != nil {
		slog.Error(s.name+" ListContacts query failed", "error", err)
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	var contacts []models.EmergencyContact
	for rows.Next() {
		var c models.EmergencyContact
		if err := rows.Scan(&c.ID, &c.Name, &c.PhoneNumber, &c.Relationship, &c.IsPrimary, &c.EnableSMS,
			&c.EnableCall, &c.EnableLiveLocation, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan contact row: %w", err)
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (s *sqlStore) DeleteContact(id string) error {
	res, err := s.db.Exec(s.q(`DELETE FROM contacts WHERE id = ?`), id)
	if err != nil {
		slog.Error(s.name+" DeleteContact failed", "error", err, "contactID", id)
		return fmt.Errorf("failed to delete contact %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", models.ErrContactNotFound, id)
	}
	return nil
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	slog.Debug("Closing " + s.name + " database connection")
	return s.db.Close()
}
