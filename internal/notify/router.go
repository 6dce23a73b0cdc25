package notify

import (
	"context"
	"fmt"

	"slotkeeper/internal/reminders"
)

// Sender delivers one reminder over a single channel.
type Sender interface {
	Send(ctx context.Context, b reminders.Booking, lead int) error
}

// Router picks the Sender registered for a channel. It implements
// reminders.Notifier.
type Router struct {
	senders map[reminders.Channel]Sender
}

func NewRouter() *Router {
	return &Router{senders: make(map[reminders.Channel]Sender)}
}

// Handle registers s for ch, replacing any earlier sender.
func (r *Router) Handle(ch reminders.Channel, s Sender) *Router {
	r.senders[ch] = s
	return r
}

// Channels lists the channels that have a sender.
func (r *Router) Channels() []reminders.Channel {
	out := make([]reminders.Channel, 0, len(r.senders))
	for _, ch := range []reminders.Channel{reminders.ChannelEmail, reminders.ChannelTelegram} {
		if _, ok := r.senders[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}

func (r *Router) Dispatch(ctx context.Context, b reminders.Booking, lead int, ch reminders.Channel) error {
	s, ok := r.senders[ch]
	if !ok {
		return fmt.Errorf("%w: no sender configured for channel %q", reminders.ErrPermanent, ch)
	}
	return s.Send(ctx, b, lead)
}
