package geo

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/BTreeMap/SafeSignal/internal/models"
	"github.com/oschwald/geoip2-golang"
)

// StaticLocator always reports the same configured position. It is used when the
// host publishes a fixed position (for example a stationary panic button).
type StaticLocator struct {
	loc models.Location
}

// NewStaticLocator creates a locator for a fixed position.
func NewStaticLocator(lat, lon, accuracy float64, address string) *StaticLocator {
	return &StaticLocator{loc: models.Location{Latitude: lat, Longitude: lon, Accuracy: accuracy, Address: address}}
}

// Locate returns a copy of the configured position.
func (s *StaticLocator) Locate(ctx context.Context) (*models.Location, error) {
	loc := s.loc
	return &loc, nil
}

// GeoIPLocator resolves the device's public IP against a MaxMind City database.
// Accuracy comes from the database's accuracy radius and the address from the
// city and country names.
type GeoIPLocator struct {
	reader *geoip2.Reader
	ip     net.IP
}

// NewGeoIPLocator opens the database at dbPath for lookups of publicIP.
func NewGeoIPLocator(dbPath, publicIP string) (*GeoIPLocator, error) {
	ip := net.ParseIP(publicIP)
	if ip == nil {
		return nil, fmt.Errorf("invalid device public IP %q", publicIP)
	}
	reader, err := geoip2.Open(dbPath)
	if err != nil {
		slog.Error("GeoIPLocator failed to open database", "error", err, "path", dbPath)
		return nil, fmt.Errorf("failed to open geoip database: %w", err)
	}
	slog.Debug("GeoIPLocator opened", "path", dbPath)
	return &GeoIPLocator{reader: reader, ip: ip}, nil
}

// Locate looks the configured IP up in the database.
func (g *GeoIPLocator) Locate(ctx context.Context) (*models.Location, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	record, err := g.reader.City(g.ip)
	if err != nil {
		return nil, fmt.Errorf("geoip lookup failed: %w", err)
	}
	if record.Location.Latitude == 0 && record.Location.Longitude == 0 {
		return nil, models.ErrLocationUnavailable
	}

	var parts []string
	if name := record.City.Names["en"]; name != "" {
		parts = append(parts, name)
	}
	if name := record.Country.Names["en"]; name != "" {
		parts = append(parts, name)
	}

	return &models.Location{
		Latitude:  record.Location.Latitude,
		Longitude: record.Location.Longitude,
		Accuracy:  float64(record.Location.AccuracyRadius) * 1000,
		Address:   strings.Join(parts, ", "),
	}, nil
}

// Close releases the database.
func (g *GeoIPLocator) Close() error {
	return g.reader.Close()
}
