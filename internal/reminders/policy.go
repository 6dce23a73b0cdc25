package reminders

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Channel is a delivery route for a reminder.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelTelegram Channel = "telegram"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelTelegram:
		return true
	}
	return false
}

var (
	ErrInvalidRule    = errors.New("invalid reminder rule")
	ErrDuplicateLead  = errors.New("duplicate reminder lead time")
	ErrUnknownChannel = errors.New("unknown reminder channel")
)

// Rule fires once the booking start is LeadMinutes or fewer minutes away.
type Rule struct {
	LeadMinutes int       `json:"lead_minutes"`
	Channels    []Channel `json:"channels"`
}

// Policy is the list of rules attached to a service. Bookings keep a copy
// taken when they are created.
type Policy []Rule

// Validate rejects negative lead times, empty or unknown channel sets and
// repeated lead times.
func (p Policy) Validate() error {
	seen := make(map[int]struct{}, len(p))
	for i, r := range p {
		if r.LeadMinutes < 0 {
			return fmt.Errorf("%w: rules[%d]: negative lead time %d", ErrInvalidRule, i, r.LeadMinutes)
		}
		if len(r.Channels) == 0 {
			return fmt.Errorf("%w: rules[%d]: no channels", ErrInvalidRule, i)
		}
		for _, ch := range r.Channels {
			if !ch.Valid() {
				return fmt.Errorf("%w: rules[%d]: %q", ErrUnknownChannel, i, ch)
			}
		}
		if _, dup := seen[r.LeadMinutes]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicateLead, r.LeadMinutes)
		}
		seen[r.LeadMinutes] = struct{}{}
	}
	return nil
}

// Snapshot returns a deep copy so later edits to the service do not leak into
// existing bookings.
func (p Policy) Snapshot() Policy {
	if p == nil {
		return nil
	}
	out := make(Policy, len(p))
	for i, r := range p {
		out[i] = Rule{LeadMinutes: r.LeadMinutes, Channels: slices.Clone(r.Channels)}
	}
	return out
}

// SentRecord maps a lead time to the channels already dispatched for it.
// Entries are only ever added.
type SentRecord map[int][]Channel

// Sent reports whether ch was already dispatched for lead.
func (s SentRecord) Sent(lead int, ch Channel) bool {
	return slices.Contains(s[lead], ch)
}

// Merge adds (lead, ch) unless it is already present. It reports whether the
// record changed.
func (s SentRecord) Merge(lead int, ch Channel) bool {
	if s.Sent(lead, ch) {
		return false
	}
	s[lead] = append(s[lead], ch)
	return true
}

// anyBelow reports whether something was sent for a lead time smaller than lead.
func (s SentRecord) anyBelow(lead int) bool {
	for sentLead, chans := range s {
		if sentLead < lead && len(chans) > 0 {
			return true
		}
	}
	return false
}

// Recipient holds the contact details the notifier needs.
type Recipient struct {
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	TelegramChatID int64  `json:"telegram_chat_id,omitempty"`
}

// Booking is the slice of a booking the reminder scan works on.
type Booking struct {
	ID           string
	FriendlyID   string
	BusinessID   string
	BusinessName string
	ServiceName  string
	Start        time.Time
	End          time.Time
	Location     *time.Location
	Policy       Policy
	Sent         SentRecord
	Recipient    Recipient
}

// Batch is the single rule selected for one booking in one scan, reduced to
// the channels still owed.
type Batch struct {
	LeadMinutes int
	Channels    []Channel
}
