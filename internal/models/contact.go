package models

import (
	"sort"
	"strings"
	"time"
)

// EmergencyContact is a person alerted on activation.
type EmergencyContact struct {
	ID                 string    `json:"id" yaml:"id,omitempty"`
	Name               string    `json:"name" yaml:"name"`
	PhoneNumber        string    `json:"phone_number" yaml:"phone_number"`
	Relationship       string    `json:"relationship,omitempty" yaml:"relationship,omitempty"`
	IsPrimary          bool      `json:"is_primary" yaml:"is_primary"`
	EnableSMS          bool      `json:"enable_sms" yaml:"enable_sms"`
	EnableCall         bool      `json:"enable_call" yaml:"enable_call"`
	EnableLiveLocation bool      `json:"enable_live_location" yaml:"enable_live_location"`
	CreatedAt          time.Time `json:"created_at" yaml:"-"`
}

// Validate checks required fields and the phone number format.
func (c EmergencyContact) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyContactName
	}
	return ValidatePhoneNumber(c.PhoneNumber)
}

// ValidatePhoneNumber accepts a non-empty string of digits with an optional leading '+'.
func ValidatePhoneNumber(phone string) error {
	digits := strings.TrimPrefix(phone, "+")
	if digits == "" {
		return ErrInvalidPhoneNumber
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return ErrInvalidPhoneNumber
		}
	}
	return nil
}

// OrderForDispatch returns the contacts that pass keep, primary contacts first.
// The sort is stable so insertion order breaks ties.
func OrderForDispatch(contacts []EmergencyContact, keep func(EmergencyContact) bool) []EmergencyContact {
	out := make([]EmergencyContact, 0, len(contacts))
	for _, c := range contacts {
		if keep == nil || keep(c) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].IsPrimary && !out[j].IsPrimary
	})
	return out
}

// SMSEnabled selects contacts that receive the initial alert.
func SMSEnabled(c EmergencyContact) bool { return c.EnableSMS }

// LiveLocationEnabled selects contacts that receive follow-up location updates.
func LiveLocationEnabled(c EmergencyContact) bool { return c.EnableSMS && c.EnableLiveLocation }

// CallEnabled selects contacts that receive a voice call on activation.
func CallEnabled(c EmergencyContact) bool { return c.EnableCall }

// PersonalInfo is optional medical/identity data. It is only ever included in an
// alert when UserSettings.IncludePersonalInfo is explicitly true.
type PersonalInfo struct {
	FullName     string `json:"full_name,omitempty" yaml:"full_name,omitempty"`
	BloodType    string `json:"blood_type,omitempty" yaml:"blood_type,omitempty"`
	Allergies    string `json:"allergies,omitempty" yaml:"allergies,omitempty"`
	MedicalNotes string `json:"medical_notes,omitempty" yaml:"medical_notes,omitempty"`
}

// IsEmpty reports whether no personal field is set.
func (p PersonalInfo) IsEmpty() bool {
	return p.FullName == "" && p.BloodType == "" && p.Allergies == "" && p.MedicalNotes == ""
}
