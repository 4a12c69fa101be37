// Package compose renders alert message templates against device snapshots.
//
// Every function here is pure: the same inputs always produce the same text.
package compose

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/BTreeMap/SafeSignal/internal/models"
)

const (
	// LocationUnavailable replaces {LOCATION} when the snapshot has no fix.
	LocationUnavailable = "Location unavailable"
	// MapsLinkPrefix is the base of generated map links.
	MapsLinkPrefix = "https://maps.google.com/?q="
)

var mapsLinkRegex = regexp.MustCompile(`https://maps\.google\.com/\?q=(-?[0-9]+(?:\.[0-9]+)?),(-?[0-9]+(?:\.[0-9]+)?)`)

// emptyLinkRegex matches a {MAPS_LINK} placeholder with the blanks that would
// dangle once it renders empty: those before it, or those after it when it
// opens a line.
var emptyLinkRegex = regexp.MustCompile(`[ \t]+` + regexp.QuoteMeta(models.PlaceholderMapsLink) + `|(?m:^)` + regexp.QuoteMeta(models.PlaceholderMapsLink) + `[ \t]*`)

// Compose renders the initial alert. Personal info is appended only when
// settings.IncludePersonalInfo is true.
func Compose(settings models.UserSettings, snap models.DeviceSnapshot, personal models.PersonalInfo) string {
	var b strings.Builder
	b.WriteString(render(settings.MessageTemplate, snap, nil))
	writeAddress(&b, snap)
	if settings.IncludeBatteryInfo {
		writeBattery(&b, snap)
	}
	if settings.IncludePersonalInfo {
		writePersonal(&b, personal)
	}
	return b.String()
}

// ComposeFollowUp renders follow-up number n of limit. Follow-ups never carry
// personal info.
func ComposeFollowUp(settings models.UserSettings, snap models.DeviceSnapshot, n, limit int) string {
	tmpl := settings.FollowUpTemplate
	if tmpl == "" {
		tmpl = models.DefaultFollowUpTemplate
	}
	var b strings.Builder
	b.WriteString(render(tmpl, snap, strings.NewReplacer(
		models.PlaceholderUpdateN, strconv.Itoa(n),
		models.PlaceholderUpdateOf, strconv.Itoa(limit),
	)))
	writeAddress(&b, snap)
	if settings.IncludeBatteryInfo {
		writeBattery(&b, snap)
	}
	return b.String()
}

// LocationText returns the {LOCATION} substitution for a snapshot.
func LocationText(snap models.DeviceSnapshot) string {
	if !snap.HasLocation() {
		return LocationUnavailable
	}
	return fmt.Sprintf("Lat: %s, Lng: %s", formatCoord(snap.Location.Latitude), formatCoord(snap.Location.Longitude))
}

// MapsLink returns the {MAPS_LINK} substitution, or "" without a fix.
func MapsLink(snap models.DeviceSnapshot) string {
	if !snap.HasLocation() {
		return ""
	}
	return MapsLinkPrefix + formatCoord(snap.Location.Latitude) + "," + formatCoord(snap.Location.Longitude)
}

// ParseMapsLink extracts the coordinates of the first maps link in msg.
func ParseMapsLink(msg string) (lat, lon float64, ok bool) {
	m := mapsLinkRegex.FindStringSubmatch(msg)
	if m == nil {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err = strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

// formatCoord uses the shortest representation that parses back to the same value.
func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func render(tmpl string, snap models.DeviceSnapshot, extra *strings.Replacer) string {
	hasLocation := strings.Contains(tmpl, models.PlaceholderLocation)
	hasLink := strings.Contains(tmpl, models.PlaceholderMapsLink)

	link := MapsLink(snap)
	if link == "" {
		tmpl = emptyLinkRegex.ReplaceAllString(tmpl, "")
	}
	out := strings.NewReplacer(
		models.PlaceholderLocation, LocationText(snap),
		models.PlaceholderMapsLink, link,
	).Replace(tmpl)
	if extra != nil {
		out = extra.Replace(out)
	}

	// Templates without placeholders still carry the position.
	if !hasLocation && !hasLink {
		out += "\n" + LocationText(snap)
		if link != "" {
			out += " " + link
		}
	}
	return out
}

func writeAddress(b *strings.Builder, snap models.DeviceSnapshot) {
	if snap.HasLocation() && snap.Location.Address != "" {
		b.WriteString("\nNear: " + snap.Location.Address)
	}
}

func writeBattery(b *strings.Builder, snap models.DeviceSnapshot) {
	if snap.BatteryLevel < 0 {
		return
	}
	fmt.Fprintf(b, "\nBattery: %d%%", snap.BatteryLevel)
	if snap.IsCharging {
		b.WriteString(" (charging)")
	}
}

func writePersonal(b *strings.Builder, p models.PersonalInfo) {
	if p.IsEmpty() {
		return
	}
	if p.FullName != "" {
		b.WriteString("\nName: " + p.FullName)
	}
	if p.BloodType != "" {
		b.WriteString("\nBlood type: " + p.BloodType)
	}
	if p.Allergies != "" {
		b.WriteString("\nAllergies: " + p.Allergies)
	}
	if p.MedicalNotes != "" {
		b.WriteString("\nMedical notes: " + p.MedicalNotes)
	}
}
