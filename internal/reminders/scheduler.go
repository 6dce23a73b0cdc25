package reminders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrScanInProgress is returned by RunOnce when another scan has not finished.
var ErrScanInProgress = errors.New("reminder scan already in progress")

// Store is the booking repository the scan reads from and records into.
type Store interface {
	// ListOpenBookings returns confirmed bookings that have not ended at now,
	// with their policy snapshot and sent record.
	ListOpenBookings(ctx context.Context, now time.Time) ([]Booking, error)

	// AppendSentReminder merges (lead, ch) into the booking's sent record.
	// Recording a pair twice is a no-op.
	AppendSentReminder(ctx context.Context, bookingID string, lead int, ch Channel) error
}

// Notifier delivers one channel of one reminder.
type Notifier interface {
	Dispatch(ctx context.Context, b Booking, lead int, ch Channel) error
}

// Dispatched describes one reminder channel that was delivered and recorded.
type Dispatched struct {
	RunID       string
	BookingID   string
	BusinessID  string
	LeadMinutes int
	Channel     Channel
	At          time.Time
}

// Config holds configuration for the reminder scan.
type Config struct {
	// MaxConcurrency limits how many bookings are processed in parallel.
	// Default: 10.
	MaxConcurrency int

	// ScanTimeout bounds a whole RunOnce. Default: 4 minutes, under the
	// 5 minute trigger cadence.
	ScanTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 10,
		ScanTimeout:    4 * time.Minute,
	}
}

// Summary is the outcome of one scan.
type Summary struct {
	RunID string `json:"run_id"`
	// Open is the number of open bookings examined.
	Open int `json:"open_bookings"`
	// Dispatched counts channels delivered and recorded.
	Dispatched int `json:"dispatched"`
	// Failed counts channels that could not be delivered or recorded.
	Failed int `json:"failed"`
	// Skipped counts bookings that had at least one failure.
	Skipped int `json:"bookings_skipped"`
	// Suppressed counts channels not attempted because they were refused
	// permanently for the booking earlier.
	Suppressed int `json:"suppressed"`
}

type refusalKey struct {
	bookingID string
	channel   Channel
}

// Scheduler runs reminder scans over the open bookings.
type Scheduler struct {
	cfg      Config
	store    Store
	notifier Notifier
	metrics  *Metrics
	logger   zerolog.Logger
	now      func() time.Time

	// scanning is held for the whole of RunOnce.
	scanning sync.Mutex

	refusedMu sync.Mutex
	refused   map[refusalKey]struct{}

	// OnDispatched, when set, is called after each recorded dispatch.
	OnDispatched func(Dispatched)
}

// NewScheduler creates a new reminder scheduler.
func NewScheduler(cfg Config, store Store, notifier Notifier, metrics *Metrics, logger zerolog.Logger) *Scheduler {
	def := DefaultConfig()
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = def.MaxConcurrency
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = def.ScanTimeout
	}
	return &Scheduler{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger.With().Str("component", "reminder_scheduler").Logger(),
		now:      time.Now,
		refused:  make(map[refusalKey]struct{}),
	}
}

// SetClock replaces the time source.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// RunOnce performs one scan. Scans never overlap: a call made while another
// scan is running returns ErrScanInProgress without reading any booking.
// Otherwise only a failure to list bookings is returned as an error;
// per-booking failures are logged and counted in the summary.
func (s *Scheduler) RunOnce(ctx context.Context) (Summary, error) {
	if !s.scanning.TryLock() {
		return Summary{}, ErrScanInProgress
	}
	defer s.scanning.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ScanTimeout)
	defer cancel()

	started := time.Now()
	now := s.now()
	sum := Summary{RunID: uuid.NewString()}
	log := s.logger.With().Str("run_id", sum.RunID).Logger()

	log.Info().Msg("Sending booking reminders")

	bookings, err := s.store.ListOpenBookings(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list open bookings")
		return sum, fmt.Errorf("list open bookings: %w", err)
	}
	sum.Open = len(bookings)

	s.forgetRefusals(bookings)

	var (
		dispatched, failed, skipped, suppressed atomic.Int64
		wg                          sync.WaitGroup
		sem                         = make(chan struct{}, s.cfg.MaxConcurrency)
	)

	for _, b := range bookings {
		batch, ok := SelectDue(now, b)
		if !ok {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(b Booking, batch Batch) {
			defer wg.Done()
			defer func() { <-sem }()

			sent, errs, held := s.processBooking(ctx, log, sum.RunID, now, b, batch)
			dispatched.Add(int64(sent))
			suppressed.Add(int64(held))
			if errs > 0 {
				failed.Add(int64(errs))
				skipped.Add(1)
				s.metrics.incBookingErrors()
			}
		}(b, batch)
	}
	wg.Wait()

	sum.Dispatched = int(dispatched.Load())
	sum.Failed = int(failed.Load())
	sum.Skipped = int(skipped.Load())
	sum.Suppressed = int(suppressed.Load())
	s.metrics.observeScan(time.Since(started).Seconds(), sum.Open)

	log.Info().
		Int("open_bookings", sum.Open).
		Int("failed", sum.Failed).
		Int("bookings_skipped", sum.Skipped).
		Int("suppressed", sum.Suppressed).
		Msgf("Finished sending reminders. %d reminders were sent", sum.Dispatched)

	return sum, nil
}

// processBooking dispatches every channel of batch and records the ones that
// went out. Channels that fail are left unrecorded so the next scan retries
// them, except channels refused permanently, which are held back for the rest
// of the process lifetime.
func (s *Scheduler) processBooking(ctx context.Context, log zerolog.Logger, runID string, now time.Time, b Booking, batch Batch) (sent, failed, held int) {
	for _, ch := range batch.Channels {
		if err := ctx.Err(); err != nil {
			failed++
			continue
		}
		if s.isRefused(b.ID, ch) {
			held++
			s.metrics.incDispatch(ch, "suppressed")
			continue
		}

		if err := s.notifier.Dispatch(ctx, b, batch.LeadMinutes, ch); err != nil {
			failed++
			result := "failed"
			if isPermanent(err) {
				result = "refused"
				s.markRefused(b.ID, ch)
			}
			s.metrics.incDispatch(ch, result)
			log.Error().
				Err(err).
				Str("booking_id", b.ID).
				Int("lead_minutes", batch.LeadMinutes).
				Str("channel", string(ch)).
				Msg("Failed to dispatch reminder")
			continue
		}

		if err := s.store.AppendSentReminder(ctx, b.ID, batch.LeadMinutes, ch); err != nil {
			failed++
			s.metrics.incDispatch(ch, "unrecorded")
			log.Error().
				Err(err).
				Str("booking_id", b.ID).
				Int("lead_minutes", batch.LeadMinutes).
				Str("channel", string(ch)).
				Msg("Failed to record sent reminder (notification was sent)")
			continue
		}

		sent++
		s.metrics.incDispatch(ch, "sent")
		log.Debug().
			Str("booking_id", b.ID).
			Int("lead_minutes", batch.LeadMinutes).
			Str("channel", string(ch)).
			Msg("Reminder sent")

		if s.OnDispatched != nil {
			s.OnDispatched(Dispatched{
				RunID:       runID,
				BookingID:   b.ID,
				BusinessID:  b.BusinessID,
				LeadMinutes: batch.LeadMinutes,
				Channel:     ch,
				At:          now,
			})
		}
	}
	return sent, failed, held
}

func isPermanent(err error) bool {
	if errors.Is(err, ErrPermanent) {
		return true
	}
	var dErr *DeliveryError
	return errors.As(err, &dErr) && dErr.Permanent()
}

func (s *Scheduler) isRefused(bookingID string, ch Channel) bool {
	s.refusedMu.Lock()
	defer s.refusedMu.Unlock()
	_, ok := s.refused[refusalKey{bookingID, ch}]
	return ok
}

func (s *Scheduler) markRefused(bookingID string, ch Channel) {
	s.refusedMu.Lock()
	defer s.refusedMu.Unlock()
	s.refused[refusalKey{bookingID, ch}] = struct{}{}
}

// forgetRefusals drops refusals of bookings that are no longer open.
func (s *Scheduler) forgetRefusals(open []Booking) {
	s.refusedMu.Lock()
	defer s.refusedMu.Unlock()
	if len(s.refused) == 0 {
		return
	}
	ids := make(map[string]struct{}, len(open))
	for _, b := range open {
		ids[b.ID] = struct{}{}
	}
	for k := range s.refused {
		if _, ok := ids[k.bookingID]; !ok {
			delete(s.refused, k)
		}
	}
}
