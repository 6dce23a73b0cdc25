package models

import (
	"fmt"
	"time"

	"slotkeeper/internal/reminders"
)

// Booking statuses.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusDeclined  = "declined"
	StatusCancelled = "cancelled"
)

// ValidStatus reports whether s is a known booking status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusApproved, StatusDeclined, StatusCancelled:
		return true
	}
	return false
}

// DurationUnit is the unit a service length is expressed in.
type DurationUnit string

const (
	UnitMinute DurationUnit = "minute"
	UnitHour   DurationUnit = "hour"
)

// Business is a tenant. Its schedule is stored separately and loaded on demand.
type Business struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Timezone    string    `json:"timezone"` // IANA name, e.g. "Europe/Berlin"
	IsActive    bool      `json:"is_active"`
	AutoApprove bool      `json:"auto_approve"`
	NonStop     bool      `json:"operates_non_stop"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Location resolves the business timezone. An empty name means UTC.
func (b *Business) Location() (*time.Location, error) {
	if b.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return nil, fmt.Errorf("business %s timezone %q: %w", b.ID, b.Timezone, err)
	}
	return loc, nil
}

// Service is something a business offers for booking.
type Service struct {
	ID           string           `json:"id"`
	BusinessID   string           `json:"business_id"`
	Name         string           `json:"name"`
	Duration     int              `json:"duration"`
	DurationUnit DurationUnit     `json:"duration_unit"`
	IsActive     bool             `json:"is_active"`
	Reminders    reminders.Policy `json:"reminders"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Length converts Duration and DurationUnit to a time.Duration.
func (s *Service) Length() (time.Duration, error) {
	if s.Duration <= 0 {
		return 0, fmt.Errorf("service %s has non-positive duration %d", s.ID, s.Duration)
	}
	switch s.DurationUnit {
	case UnitMinute:
		return time.Duration(s.Duration) * time.Minute, nil
	case UnitHour:
		return time.Duration(s.Duration) * time.Hour, nil
	default:
		return 0, fmt.Errorf("service %s has unsupported duration unit %q", s.ID, s.DurationUnit)
	}
}

// Customer is the person a booking is made for.
type Customer struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone,omitempty"`
	TelegramChatID int64  `json:"telegram_chat_id,omitempty"`
}

// Booking is a reserved time slot for one service.
type Booking struct {
	ID         string    `json:"id"`
	FriendlyID string    `json:"friendly_id"`
	BusinessID string    `json:"business_id"`
	ServiceID  string    `json:"service_id"`
	Customer   Customer  `json:"customer"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Status     string    `json:"status"`
	Comment    string    `json:"comment,omitempty"`
	// Reminders is the service policy as it was when the booking was created.
	Reminders     reminders.Policy     `json:"reminders"`
	SentReminders reminders.SentRecord `json:"sent_reminders"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// IsOpen reports whether the booking still gets reminders at now.
func (b *Booking) IsOpen(now time.Time) bool {
	return b.Status == StatusApproved && b.End.After(now)
}
