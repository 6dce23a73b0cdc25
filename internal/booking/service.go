// Package booking creates bookings: it checks the requested window against
// the service length and the tenant's business hours, snapshots the
// reminder policy and assigns a short per-business id.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"slotkeeper/internal/database"
	"slotkeeper/internal/events"
	"slotkeeper/internal/models"
	"slotkeeper/internal/schedule"
)

var (
	// ErrDurationMismatch means end - start differs from the service length.
	ErrDurationMismatch = fmt.Errorf("%w: duration mismatch", schedule.ErrValidation)
	// ErrInactive means the business or service does not take bookings.
	ErrInactive = errors.New("business or service is not active")
	// ErrWrongBusiness means the service belongs to another business.
	ErrWrongBusiness = errors.New("service does not belong to business")
	// ErrFriendlyIDExhausted means no free friendly id was found.
	ErrFriendlyIDExhausted = errors.New("could not allocate a friendly booking id")
)

const (
	friendlyIDLength   = 5
	friendlyIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	friendlyIDAttempts = 10
)

// Store is the persistence the service needs.
type Store interface {
	GetBusiness(ctx context.Context, id string) (*models.Business, error)
	GetService(ctx context.Context, id string) (*models.Service, error)
	FriendlyIDExists(ctx context.Context, businessID, friendlyID string) (bool, error)
	CreateBooking(ctx context.Context, b *models.Booking) error
}

// ScheduleLoader returns a tenant's weekly hours. The Redis cache and the
// database both satisfy it.
type ScheduleLoader interface {
	LoadSchedule(ctx context.Context, businessID string) (schedule.Schedule, error)
}

// EventPublisher publishes domain events.
type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

// CreateRequest is a customer's booking request.
type CreateRequest struct {
	BusinessID string
	ServiceID  string
	Customer   models.Customer
	Start      time.Time
	End        time.Time
	Comment    string
}

type Service struct {
	store     Store
	schedules ScheduleLoader
	events    EventPublisher
	admission *prometheus.CounterVec
	logger    zerolog.Logger
	newID     func() string
}

func NewService(store Store, schedules ScheduleLoader, bus EventPublisher, reg prometheus.Registerer, logger zerolog.Logger) *Service {
	s := &Service{
		store:     store,
		schedules: schedules,
		events:    bus,
		logger:    logger.With().Str("component", "booking").Logger(),
		newID:     uuid.NewString,
	}
	if reg != nil {
		s.admission = promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "slotkeeper",
				Name:      "booking_admission_total",
				Help:      "Booking admission decisions by result",
			},
			[]string{"result"},
		)
	}
	return s
}

// Create validates req and stores the booking. Rejections by business hours
// come back as *schedule.RejectionError.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Booking, error) {
	biz, err := s.store.GetBusiness(ctx, req.BusinessID)
	if err != nil {
		return nil, err
	}
	svc, err := s.store.GetService(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}
	if svc.BusinessID != biz.ID {
		return nil, fmt.Errorf("service %s, business %s: %w", svc.ID, biz.ID, ErrWrongBusiness)
	}
	if !biz.IsActive || !svc.IsActive {
		return nil, ErrInactive
	}

	start := req.Start.Truncate(time.Minute)
	end := req.End.Truncate(time.Minute)
	length, err := svc.Length()
	if err != nil {
		return nil, err
	}
	if end.Sub(start) != length {
		return nil, fmt.Errorf("%w: got %s, service %s is %s", ErrDurationMismatch, end.Sub(start), svc.ID, length)
	}

	loc, err := biz.Location()
	if err != nil {
		return nil, err
	}
	hours, err := s.schedules.LoadSchedule(ctx, biz.ID)
	if err != nil {
		return nil, err
	}
	decision := schedule.Admit(start, end, loc, hours)
	s.countAdmission(decision)
	if !decision.Admitted {
		s.logger.Info().
			Str("business_id", biz.ID).
			Str("reason", string(decision.Reason)).
			Stringer("local_start", decision.Start).
			Msg("Booking rejected outside business hours")
		return nil, decision.Err()
	}

	status := models.StatusPending
	if biz.AutoApprove {
		status = models.StatusApproved
	}
	b := &models.Booking{
		ID:         s.newID(),
		BusinessID: biz.ID,
		ServiceID:  svc.ID,
		Customer:   req.Customer,
		Start:      start,
		End:        end,
		Status:     status,
		Comment:    req.Comment,
		Reminders:  svc.Reminders.Snapshot(),
	}
	if err := s.insert(ctx, b); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("booking_id", b.ID).
		Str("friendly_id", b.FriendlyID).
		Str("business_id", b.BusinessID).
		Str("status", b.Status).
		Msg("Booking created")

	if s.events != nil {
		err := s.events.PublishJSON(events.BookingCreated, events.BookingPayload{
			BookingID:  b.ID,
			FriendlyID: b.FriendlyID,
			BusinessID: b.BusinessID,
			Status:     b.Status,
			Start:      b.Start,
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("booking_id", b.ID).Msg("Failed to publish booking event")
		}
	}
	return b, nil
}

// insert picks a friendly id that looks free and retries if another request
// takes it between the check and the insert.
func (s *Service) insert(ctx context.Context, b *models.Booking) error {
	for attempt := 0; attempt < friendlyIDAttempts; attempt++ {
		candidate := FriendlyID(uuid.New())
		taken, err := s.store.FriendlyIDExists(ctx, b.BusinessID, candidate)
		if err != nil {
			return err
		}
		if taken {
			continue
		}
		b.FriendlyID = candidate
		err = s.store.CreateBooking(ctx, b)
		if errors.Is(err, database.ErrDuplicateFriendly) {
			continue
		}
		return err
	}
	return ErrFriendlyIDExhausted
}

// FriendlyID maps the first bytes of u onto [a-z0-9].
func FriendlyID(u uuid.UUID) string {
	out := make([]byte, friendlyIDLength)
	for i := range out {
		out[i] = friendlyIDAlphabet[int(u[i])%len(friendlyIDAlphabet)]
	}
	return string(out)
}

func (s *Service) countAdmission(d schedule.Decision) {
	if s.admission == nil {
		return
	}
	result := "admitted"
	if !d.Admitted {
		result = string(d.Reason)
	}
	s.admission.WithLabelValues(result).Inc()
}
