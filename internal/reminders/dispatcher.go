package reminders

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrPermanent marks a delivery failure that retrying will not fix, such as a
// recipient who blocked the bot.
var ErrPermanent = errors.New("permanent delivery failure")

// DeliveryError is returned by channel senders that get a status code back
// from their upstream.
type DeliveryError struct {
	Channel    Channel
	Code       int
	Message    string
	RetryAfter time.Duration
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery error %d: %s", e.Channel, e.Code, e.Message)
}

// Permanent reports whether the upstream refused the message for good.
func (e *DeliveryError) Permanent() bool {
	return e.Code == http.StatusForbidden || e.Code == http.StatusBadRequest
}

// RetryConfig holds configuration for retry logic.
type RetryConfig struct {
	MaxRetries  int
	RetryDelays []time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		RetryDelays: []time.Duration{
			1 * time.Second,
			5 * time.Second,
			30 * time.Second,
		},
	}
}

func (c RetryConfig) delay(attempt int) time.Duration {
	if len(c.RetryDelays) == 0 {
		return 0
	}
	if attempt >= len(c.RetryDelays) {
		return c.RetryDelays[len(c.RetryDelays)-1]
	}
	return c.RetryDelays[attempt]
}

// DispatcherConfig holds the limiter and retry settings.
type DispatcherConfig struct {
	// Rate is the number of dispatches allowed per second across all channels.
	Rate  float64
	Burst int
	Retry RetryConfig
}

// DefaultDispatcherConfig returns the default configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Rate:  20,
		Burst: 30,
		Retry: DefaultRetryConfig(),
	}
}

// Dispatcher wraps a Notifier with rate limiting and retries. It is itself a
// Notifier.
type Dispatcher struct {
	next    Notifier
	limiter *rate.Limiter
	retry   RetryConfig
	metrics *Metrics
	logger  zerolog.Logger
}

// NewDispatcher creates a dispatcher in front of next.
func NewDispatcher(next Notifier, cfg DispatcherConfig, metrics *Metrics, logger zerolog.Logger) *Dispatcher {
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultDispatcherConfig().Rate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultDispatcherConfig().Burst
	}
	return &Dispatcher{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		retry:   cfg.Retry,
		metrics: metrics,
		logger:  logger.With().Str("component", "reminder_dispatcher").Logger(),
	}
}

// Dispatch sends one channel of a reminder, retrying transient failures.
func (d *Dispatcher) Dispatch(ctx context.Context, b Booking, lead int, ch Channel) error {
	if !d.limiter.Allow() {
		d.metrics.incRateLimitWaits()
		if err := d.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= d.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			d.metrics.incRetries()
		}

		err := d.next.Dispatch(ctx, b, lead, ch)
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, ErrPermanent) {
			return err
		}

		wait := d.retry.delay(attempt)
		var dErr *DeliveryError
		if errors.As(err, &dErr) {
			if dErr.Permanent() {
				d.logger.Warn().
					Str("booking_id", b.ID).
					Str("channel", string(ch)).
					Int("code", dErr.Code).
					Msg("recipient refused reminder")
				return fmt.Errorf("%w: %w", ErrPermanent, err)
			}
			if dErr.Code == http.StatusTooManyRequests && dErr.RetryAfter > 0 {
				wait = dErr.RetryAfter
			}
		}

		if attempt == d.retry.MaxRetries {
			break
		}
		d.logger.Debug().
			Err(err).
			Str("booking_id", b.ID).
			Str("channel", string(ch)).
			Int("attempt", attempt+1).
			Dur("delay", wait).
			Msg("retrying reminder dispatch")

		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
