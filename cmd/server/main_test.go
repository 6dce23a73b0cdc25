package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotkeeper/internal/events"
	"slotkeeper/internal/reminders"
)

func TestPublishDispatched(t *testing.T) {
	bus := events.NewEventBus()
	var got []events.ReminderPayload
	bus.Subscribe(events.ReminderDispatched, func(e events.Event) error {
		var p events.ReminderPayload
		require.NoError(t, e.Decode(&p))
		got = append(got, p)
		return nil
	})

	var logs bytes.Buffer
	hook := publishDispatched(bus, zerolog.New(&logs))
	hook(reminders.Dispatched{RunID: "run-1", BookingID: "bk1", BusinessID: "biz1", LeadMinutes: 60, Channel: reminders.ChannelEmail})

	require.Len(t, got, 1)
	assert.Equal(t, events.ReminderPayload{RunID: "run-1", BookingID: "bk1", BusinessID: "biz1", LeadMinutes: 60, Channel: "email"}, got[0])
	assert.Empty(t, logs.String())

	bus.Subscribe(events.ReminderDispatched, func(events.Event) error { return errors.New("sink closed") })
	hook(reminders.Dispatched{BookingID: "bk2", Channel: reminders.ChannelTelegram})
	assert.Contains(t, logs.String(), `"level":"warn"`)
	assert.Contains(t, logs.String(), "sink closed")
	assert.Contains(t, logs.String(), `"booking_id":"bk2"`)
}
