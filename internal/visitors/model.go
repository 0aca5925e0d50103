package visitors

import (
	"errors"
	"time"

	"gatepass/internal/attendance"
)

var (
	ErrNotFound            = errors.New("visitor not found")
	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidInput        = errors.New("invalid visitor input")
	ErrInvalidCredentials  = errors.New("invalid institution login id or password")
	ErrInstitutionNotFound = errors.New("institution not found")
	ErrInstitutionExists   = errors.New("institution name or login id already exists")
	ErrInvalidKey          = errors.New("login key is invalid or already used")
)

// Visitor is a registered person who can pass the gate.
type Visitor struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	InstitutionID   int64     `json:"institution_id"`
	InstitutionName string    `json:"institution_name"`
	ProfileImageRef string    `json:"profile_image_ref"`
	QRPayload       string    `json:"qr_payload"`
	QRCodeRef       string    `json:"qr_code_ref"`
	CardRef         string    `json:"card_ref"`
	CreatedAt       time.Time `json:"created_at"`
}

type Institution struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Address       string    `json:"address"`
	ContactNumber string    `json:"contact_number"`
	Email         string    `json:"email"`
	ExpectedCount int       `json:"expected_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// RegisterInput is a self-registration submitted with the institution's
// shared login.
type RegisterInput struct {
	Name            string
	Email           string
	InstitutionName string
	LoginID         string
	Password        string
	ImageName       string
	Image           []byte
}

// NewInstitution is an institution signup redeeming a one-time login key.
type NewInstitution struct {
	Key           string
	Name          string
	Address       string
	ContactNumber string
	Email         string
	ExpectedCount int
	LoginID       string
	Password      string

	passwordHash string
}

// Summary counts a visitor's attendance over all days.
type Summary struct {
	TotalDays     int `json:"total_days"`
	TotalEntries  int `json:"total_entries"`
	NormalEntries int `json:"normal_entries"`
	BypassEntries int `json:"bypass_entries"`
}

// Detail is a visitor with their full attendance history, newest day first.
type Detail struct {
	Visitor Visitor
	Records []attendance.DailyRecord
	Summary Summary
}

// RosterEntry is one visitor with their current visit, if any.
type RosterEntry struct {
	Visitor        Visitor              `json:"visitor"`
	IsActive       bool                 `json:"is_active"`
	Arrival        *time.Time           `json:"arrival,omitempty"`
	ElapsedMinutes int                  `json:"elapsed_minutes"`
	EntryType      attendance.EntryType `json:"entry_type,omitempty"`
	QRVerified     bool                 `json:"qr_verified"`
}

type TodayStats struct {
	ActiveEntries int `json:"active_entries"`
	TotalEntries  int `json:"total_entries"`
}

type Roster struct {
	Visitors []RosterEntry `json:"visitors"`
	Today    TodayStats    `json:"today_stats"`
}

// Registered is the visitor.registered job payload.
type Registered struct {
	VisitorID  string `json:"visitor_id"`
	ProfileURL string `json:"profile_url,omitempty"`
}

// QRPayload is the JSON document encoded into the visitor's QR code.
type QRPayload struct {
	VisitorID   string `json:"visitor_id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Institution string `json:"institution"`
}
