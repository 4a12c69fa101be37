package store

import (
	"database/sql"
	"fmt"

	"github.com/BTreeMap/SafeSignal/internal/models"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nullFloat maps an optional float to a nullable column value.
func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// scanEvent scans an SOSEvent selected with eventColumns.
func scanEvent(row rowScanner) (models.SOSEvent, error) {
	var ev models.SOSEvent
	var triggerType, status string
	var lat, lon, acc sql.NullFloat64
	var address sql.NullString
	var resolvedAt sql.NullTime
	err := row.Scan(&ev.ID, &triggerType, &lat, &lon, &acc, &address, &ev.BatteryLevel,
		&ev.IsCharging, &ev.NetworkType, &status, &ev.CreatedAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return ev, err
	}
	if err != nil {
		return ev, fmt.Errorf("scan sos event failed: %w", err)
	}
	ev.TriggerType = models.TriggerKind(triggerType)
	ev.Status = models.EventStatus(status)
	ev.Latitude = floatPtr(lat)
	ev.Longitude = floatPtr(lon)
	ev.Accuracy = floatPtr(acc)
	ev.Address = address.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		ev.ResolvedAt = &t
	}
	return ev, nil
}
