// Package notify delivers reminder messages over e-mail and Telegram.
package notify

import (
	"fmt"
	"strings"
	"time"

	"slotkeeper/internal/reminders"
)

// Message is a rendered reminder.
type Message struct {
	Subject string
	Body    string
}

// Compose renders the reminder for b using the business's local time.
func Compose(b reminders.Booking, lead int) Message {
	loc := b.Location
	if loc == nil {
		loc = time.UTC
	}
	start := b.Start.In(loc)

	name := b.Recipient.Name
	if name == "" {
		name = "there"
	}
	subject := "your booking"
	if b.BusinessName != "" {
		subject = b.BusinessName
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Hi %s,\n\n", name)
	sb.WriteString("This is a reminder that your booking")
	if b.ServiceName != "" {
		fmt.Fprintf(&sb, " for %s", b.ServiceName)
	}
	if b.BusinessName != "" {
		fmt.Fprintf(&sb, " at %s", b.BusinessName)
	}
	fmt.Fprintf(&sb, " starts in %s, on %s at %s.\n",
		humanLead(lead), start.Format("Mon 02 Jan 2006"), start.Format("15:04"))
	if b.FriendlyID != "" {
		fmt.Fprintf(&sb, "\nBooking reference: %s\n", b.FriendlyID)
	}

	return Message{
		Subject: fmt.Sprintf("Reminder: %s on %s", subject, start.Format("02 Jan 15:04")),
		Body:    sb.String(),
	}
}

func humanLead(minutes int) string {
	switch {
	case minutes <= 0:
		return "a moment"
	case minutes%(24*60) == 0:
		return plural(minutes/(24*60), "day")
	case minutes%60 == 0:
		return plural(minutes/60, "hour")
	default:
		return plural(minutes, "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
