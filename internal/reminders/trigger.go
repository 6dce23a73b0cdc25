package reminders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSpec scans every five minutes.
const DefaultSpec = "*/5 * * * *"

// Runner is what the trigger fires.
type Runner interface {
	RunOnce(ctx context.Context) (Summary, error)
}

// Trigger fires a Runner on a cron schedule. A tick that arrives while the
// previous scan is still running is skipped.
type Trigger struct {
	spec   string
	runner Runner
	logger zerolog.Logger
	parser cron.Parser

	mu      sync.Mutex
	c       *cron.Cron
	entryID cron.EntryID
	cancel  context.CancelFunc
	running bool
}

// NewTrigger validates spec and builds a stopped trigger.
func NewTrigger(spec string, loc *time.Location, runner Runner, logger zerolog.Logger) (*Trigger, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	if loc == nil {
		loc = time.UTC
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid reminder schedule %q: %w", spec, err)
	}

	t := &Trigger{
		spec:   spec,
		runner: runner,
		logger: logger.With().Str("component", "reminder_trigger").Logger(),
		parser: parser,
	}
	t.c = cron.New(
		cron.WithParser(parser),
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return t, nil
}

// Start registers the job and starts the cron loop. Scans run with a context
// derived from ctx that is cancelled by Stop.
func (t *Trigger) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	id, err := t.c.AddFunc(t.spec, func() { t.fire(runCtx) })
	if err != nil {
		cancel()
		return fmt.Errorf("register reminder job: %w", err)
	}
	t.entryID = id
	t.cancel = cancel
	t.running = true
	t.c.Start()

	t.logger.Info().Str("schedule", t.spec).Msg("Reminder trigger started")
	return nil
}

// Stop cancels an in-flight scan and waits for it to return.
func (t *Trigger) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	cancel := t.cancel
	t.mu.Unlock()

	cancel()
	<-t.c.Stop().Done()
	t.c.Remove(t.entryID)
	t.logger.Info().Msg("Reminder trigger stopped")
}

// Next returns the next scheduled fire time, or the zero time when stopped.
func (t *Trigger) Next() time.Time {
	entries := t.c.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (t *Trigger) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	_, err := t.runner.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrScanInProgress):
		t.logger.Warn().Msg("Previous reminder scan still running, tick skipped")
	case err != nil:
		t.logger.Error().Err(err).Msg("Reminder scan failed")
	}
}
