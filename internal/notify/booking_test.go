package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"slotkeeper/internal/events"
	"slotkeeper/internal/models"
)

type mockBookingReader struct {
	mock.Mock
}

func (m *mockBookingReader) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(ctx, id)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookingReader) GetBusiness(ctx context.Context, id string) (*models.Business, error) {
	args := m.Called(ctx, id)
	b, _ := args.Get(0).(*models.Business)
	return b, args.Error(1)
}

func (m *mockBookingReader) GetService(ctx context.Context, id string) (*models.Service, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*models.Service)
	return s, args.Error(1)
}

func requestFixture() (*models.Business, *models.Service, *models.Booking) {
	biz := &models.Business{ID: "biz1", Name: "Studio Nord", Email: "desk@studio.example", Timezone: "Europe/Berlin"}
	svc := &models.Service{ID: "svc1", BusinessID: "biz1", Name: "Massage", Duration: 45, DurationUnit: models.UnitMinute}
	b := &models.Booking{
		ID:         "bk1",
		FriendlyID: "ab12c",
		BusinessID: "biz1",
		ServiceID:  "svc1",
		Customer:   models.Customer{Name: "Ann", Email: "ann@example.com", Phone: "+491700000"},
		Start:      time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		End:        time.Date(2026, 3, 2, 9, 45, 0, 0, time.UTC),
		Status:     models.StatusPending,
		Comment:    "first visit",
	}
	return biz, svc, b
}

func TestComposeRequestMessages(t *testing.T) {
	biz, svc, b := requestFixture()

	msg := ComposeRequestToBusiness(biz, svc, b)
	assert.Equal(t, "New booking ab12c: Massage on 02 Mar 10:00", msg.Subject)
	assert.Contains(t, msg.Body, "Ann requested Massage on Mon 02 Mar 2026 at 10:00.")
	assert.Contains(t, msg.Body, "Duration: 45 minutes")
	assert.Contains(t, msg.Body, "Notes: first visit")
	assert.Contains(t, msg.Body, "Status: pending")

	msg = ComposeRequestToCustomer(biz, svc, b)
	assert.Equal(t, "Booking request at Studio Nord received", msg.Subject)
	assert.Contains(t, msg.Body, "Hi Ann,")
	assert.Contains(t, msg.Body, "Studio Nord received your booking for Massage on Mon 02 Mar 2026 at 10:00 (45 minutes).")
	assert.Contains(t, msg.Body, "once the business confirms it")

	b.Status = models.StatusApproved
	assert.Contains(t, ComposeRequestToCustomer(biz, svc, b).Body, "Your booking is confirmed.")
}

func publishCreated(t *testing.T, bus *events.EventBus, b *models.Booking) error {
	t.Helper()
	return bus.PublishJSON(events.BookingCreated, events.BookingPayload{
		BookingID:  b.ID,
		FriendlyID: b.FriendlyID,
		BusinessID: b.BusinessID,
		Status:     b.Status,
		Start:      b.Start,
	})
}

func TestBookingMailer_SendsToBusinessAndCustomer(t *testing.T) {
	biz, svc, b := requestFixture()
	store := new(mockBookingReader)
	store.On("GetBooking", mock.Anything, "bk1").Return(b, nil)
	store.On("GetBusiness", mock.Anything, "biz1").Return(biz, nil)
	store.On("GetService", mock.Anything, "svc1").Return(svc, nil)

	mailer := new(mockMailer)
	mailer.On("SendEmail", mock.Anything, "desk@studio.example", ComposeRequestToBusiness(biz, svc, b)).Return(nil).Once()
	mailer.On("SendEmail", mock.Anything, "ann@example.com", ComposeRequestToCustomer(biz, svc, b)).Return(nil).Once()

	bus := events.NewEventBus()
	NewBookingMailer(store, mailer, zerolog.Nop()).Subscribe(bus)

	require.NoError(t, publishCreated(t, bus, b))
	mailer.AssertExpectations(t)
}

func TestBookingMailer_FailuresAreSwallowed(t *testing.T) {
	biz, svc, b := requestFixture()
	store := new(mockBookingReader)
	store.On("GetBooking", mock.Anything, "bk1").Return(b, nil)
	store.On("GetBusiness", mock.Anything, "biz1").Return(biz, nil)
	store.On("GetService", mock.Anything, "svc1").Return(svc, nil)

	mailer := new(mockMailer)
	mailer.On("SendEmail", mock.Anything, "desk@studio.example", mock.Anything).Return(errors.New("smtp down")).Once()
	mailer.On("SendEmail", mock.Anything, "ann@example.com", mock.Anything).Return(nil).Once()

	var logs bytes.Buffer
	bus := events.NewEventBus()
	NewBookingMailer(store, mailer, zerolog.New(&logs)).Subscribe(bus)

	require.NoError(t, publishCreated(t, bus, b))
	mailer.AssertExpectations(t)
	assert.Contains(t, logs.String(), "smtp down")
	assert.Contains(t, logs.String(), `"booking_id":"bk1"`)
}

func TestBookingMailer_SkipsMissingAddresses(t *testing.T) {
	biz, svc, b := requestFixture()
	biz.Email = ""
	b.Customer.Email = ""
	store := new(mockBookingReader)
	store.On("GetBooking", mock.Anything, "bk1").Return(b, nil)
	store.On("GetBusiness", mock.Anything, "biz1").Return(biz, nil)
	store.On("GetService", mock.Anything, "svc1").Return(svc, nil)

	mailer := new(mockMailer)
	bus := events.NewEventBus()
	NewBookingMailer(store, mailer, zerolog.Nop()).Subscribe(bus)

	require.NoError(t, publishCreated(t, bus, b))
	mailer.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingMailer_UnknownBooking(t *testing.T) {
	store := new(mockBookingReader)
	store.On("GetBooking", mock.Anything, "ghost").Return(nil, errors.New("booking ghost: not found"))
	mailer := new(mockMailer)

	m := NewBookingMailer(store, mailer, zerolog.Nop())
	require.NoError(t, m.HandleBookingCreated(events.Event{Type: events.BookingCreated, Payload: []byte(`{"booking_id":"ghost"}`)}))
	mailer.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything)

	assert.Error(t, m.HandleBookingCreated(events.Event{Type: events.BookingCreated, Payload: []byte(`not json`)}))
}
