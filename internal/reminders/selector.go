// Package reminders decides which reminder is owed for each open booking and
// drives the periodic scan that dispatches and records them.
package reminders

import (
	"math"
	"slices"
	"time"
)

// MinutesUntil is the whole number of calendar minutes from now to start,
// rounded down. It is negative once start has passed.
func MinutesUntil(now, start time.Time) int {
	return int(math.Floor(start.Sub(now).Minutes()))
}

// SelectDue returns the one batch to dispatch for b at now, or false when
// nothing is owed.
//
// A rule is a candidate once its lead time is reached. Sending any rule with a
// smaller lead time supersedes every larger one, so a scheduler that was down
// catches up with the most imminent reminder only. Channels already recorded
// for the rule's lead time are removed, and among what is left the rule with
// the smallest lead time wins.
func SelectDue(now time.Time, b Booking) (Batch, bool) {
	until := MinutesUntil(now, b.Start)

	var (
		best  Batch
		found bool
	)
	for _, rule := range b.Policy {
		if rule.LeadMinutes < until {
			continue
		}
		if b.Sent.anyBelow(rule.LeadMinutes) {
			continue
		}
		owed := make([]Channel, 0, len(rule.Channels))
		for _, ch := range rule.Channels {
			if !b.Sent.Sent(rule.LeadMinutes, ch) && !slices.Contains(owed, ch) {
				owed = append(owed, ch)
			}
		}
		if len(owed) == 0 {
			continue
		}
		if !found || rule.LeadMinutes < best.LeadMinutes {
			best = Batch{LeadMinutes: rule.LeadMinutes, Channels: owed}
			found = true
		}
	}
	return best, found
}
