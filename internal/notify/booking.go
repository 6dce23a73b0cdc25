package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"slotkeeper/internal/events"
	"slotkeeper/internal/models"
)

// BookingReader loads what a booking request mail needs.
type BookingReader interface {
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	GetBusiness(ctx context.Context, id string) (*models.Business, error)
	GetService(ctx context.Context, id string) (*models.Service, error)
}

// BookingMailer tells the business and the customer that a booking request
// was received. Delivery failures are logged and never fail the booking.
type BookingMailer struct {
	store   BookingReader
	mailer  Mailer
	timeout time.Duration
	logger  zerolog.Logger
}

func NewBookingMailer(store BookingReader, mailer Mailer, logger zerolog.Logger) *BookingMailer {
	return &BookingMailer{
		store:   store,
		mailer:  mailer,
		timeout: 30 * time.Second,
		logger:  logger.With().Str("component", "booking_mailer").Logger(),
	}
}

// Subscribe registers the mailer for BookingCreated on bus.
func (m *BookingMailer) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.BookingCreated, m.HandleBookingCreated)
}

// HandleBookingCreated sends the request mails for the booking in e. Only a
// payload that cannot be read is returned as an error.
func (m *BookingMailer) HandleBookingCreated(e events.Event) error {
	var p events.BookingPayload
	if err := e.Decode(&p); err != nil {
		return fmt.Errorf("decode booking payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	log := m.logger.With().Str("booking_id", p.BookingID).Logger()
	if err := m.send(ctx, p.BookingID); err != nil {
		log.Warn().Err(err).Msg("Failed to send booking request email")
	}
	return nil
}

func (m *BookingMailer) send(ctx context.Context, bookingID string) error {
	b, err := m.store.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	biz, err := m.store.GetBusiness(ctx, b.BusinessID)
	if err != nil {
		return err
	}
	svc, err := m.store.GetService(ctx, b.ServiceID)
	if err != nil {
		return err
	}

	var errs []error
	if biz.Email != "" {
		if err := m.mailer.SendEmail(ctx, biz.Email, ComposeRequestToBusiness(biz, svc, b)); err != nil {
			errs = append(errs, fmt.Errorf("to business %s: %w", biz.ID, err))
		}
	}
	if b.Customer.Email != "" {
		if err := m.mailer.SendEmail(ctx, b.Customer.Email, ComposeRequestToCustomer(biz, svc, b)); err != nil {
			errs = append(errs, fmt.Errorf("to customer %s: %w", b.Customer.Email, err))
		}
	}
	return errors.Join(errs...)
}

// ComposeRequestToBusiness renders the new-booking notice for the business.
func ComposeRequestToBusiness(biz *models.Business, svc *models.Service, b *models.Booking) Message {
	start := localStart(biz, b)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s requested %s on %s at %s.\n",
		b.Customer.Name, svc.Name, start.Format("Mon 02 Jan 2006"), start.Format("15:04"))
	fmt.Fprintf(&sb, "Duration: %s\n", serviceLength(svc))
	if b.Customer.Email != "" {
		fmt.Fprintf(&sb, "E-mail: %s\n", b.Customer.Email)
	}
	if b.Customer.Phone != "" {
		fmt.Fprintf(&sb, "Phone: %s\n", b.Customer.Phone)
	}
	if b.Comment != "" {
		fmt.Fprintf(&sb, "Notes: %s\n", b.Comment)
	}
	fmt.Fprintf(&sb, "\nBooking reference: %s\nStatus: %s\n", b.FriendlyID, b.Status)

	return Message{
		Subject: fmt.Sprintf("New booking %s: %s on %s", b.FriendlyID, svc.Name, start.Format("02 Jan 15:04")),
		Body:    sb.String(),
	}
}

// ComposeRequestToCustomer renders the confirmation of receipt for the customer.
func ComposeRequestToCustomer(biz *models.Business, svc *models.Service, b *models.Booking) Message {
	start := localStart(biz, b)

	name := b.Customer.Name
	if name == "" {
		name = "there"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Hi %s,\n\n", name)
	fmt.Fprintf(&sb, "%s received your booking for %s on %s at %s (%s).\n",
		biz.Name, svc.Name, start.Format("Mon 02 Jan 2006"), start.Format("15:04"), serviceLength(svc))
	if b.Status == models.StatusApproved {
		sb.WriteString("Your booking is confirmed.\n")
	} else {
		sb.WriteString("You will hear from us once the business confirms it.\n")
	}
	fmt.Fprintf(&sb, "\nBooking reference: %s\n", b.FriendlyID)

	return Message{
		Subject: fmt.Sprintf("Booking request at %s received", biz.Name),
		Body:    sb.String(),
	}
}

func localStart(biz *models.Business, b *models.Booking) time.Time {
	loc, err := biz.Location()
	if err != nil {
		loc = time.UTC
	}
	return b.Start.In(loc)
}

func serviceLength(svc *models.Service) string {
	switch svc.DurationUnit {
	case models.UnitHour:
		return plural(svc.Duration, "hour")
	default:
		return plural(svc.Duration, "minute")
	}
}
