package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"drivetestWatcher/internal/browser"
	"drivetestWatcher/internal/flow"
	"drivetestWatcher/internal/telegram"
	"drivetestWatcher/pkg/config"
	"drivetestWatcher/pkg/slot"
)

// ErrInvalidConfig marks runs aborted before any navigation because
// required configuration was missing.
var ErrInvalidConfig = errors.New("invalid configuration")

const maxBackoff = 5 * time.Minute

// Notifier is the outbound alert channel. Send failures are logged by the
// runner, never escalated.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// session is the scoped automation resource: the flow borrows it, the
// runner guarantees Close on every exit path.
type session interface {
	flow.Automation
	Close()
}

// Runner owns the top level check loop: validate, run the flow, map
// outcomes to notifications, tear the session down.
type Runner struct {
	cfg      *config.Config
	notifier Notifier
	logger   zerolog.Logger

	newSession func() session
}

// New creates a runner backed by a real browser session per check.
func New(cfg *config.Config, notifier Notifier, logger zerolog.Logger) *Runner {
	r := &Runner{
		cfg:      cfg,
		notifier: notifier,
		logger:   logger.With().Str("component", "runner").Logger(),
	}
	r.newSession = func() session {
		return browser.New(cfg.Headless, logger)
	}
	return r
}

// RunOnce performs one complete stateless check. A run either stays silent
// (no suitable slots), sends one message per location with slots, or sends
// exactly one diagnostic message on failure.
func (r *Runner) RunOnce(ctx context.Context) error {
	runID := uuid.NewString()[:8]
	logger := r.logger.With().Str("run_id", runID).Logger()
	start := time.Now()
	logger.Info().Msg("run started")

	if err := r.cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("aborting before navigation")
		if r.cfg.TelegramConfigured() {
			r.notify(ctx, logger, telegram.FailureMessage(err.Error(), ""))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	result, err := r.check()
	if err != nil {
		msg := telegram.FailureMessage(err.Error(), "")
		var d *flow.Diagnostic
		if errors.As(err, &d) {
			msg = telegram.FailureMessage(d.Message, d.LastURL)
		}
		r.notify(ctx, logger, msg)
		return err
	}

	sent := 0
	for _, ls := range result.Locations {
		if len(ls.Slots) == 0 {
			continue
		}
		logger.Info().Str("location", ls.Location.Name).Int("slots", len(ls.Slots)).Msg("suitable slots found")
		r.notify(ctx, logger, telegram.SlotsMessage(ls.Location.Name, slot.Labels(ls.Slots)))
		sent++
	}

	logger.Info().
		Int("notifications", sent).
		Dur("duration", time.Since(start)).
		Msg("run complete")
	return nil
}

// check acquires the automation session, runs the flow, and releases the
// session whatever happens.
func (r *Runner) check() (*flow.Result, error) {
	s := r.newSession()
	defer s.Close()
	return flow.New(s, r.cfg, r.logger).Run()
}

// notify is best effort: a dispatch failure for one message never blocks
// the rest of the run.
func (r *Runner) notify(ctx context.Context, logger zerolog.Logger, text string) {
	if err := r.notifier.Send(ctx, text); err != nil {
		logger.Warn().Err(err).Msg("notification failed")
	}
}

// Watch repeats RunOnce every interval. Consecutive failures back off
// quadratically up to five minutes; a configuration error stops the loop
// since no amount of retrying fixes missing secrets. Interval zero or less
// degenerates to a single run.
func (r *Runner) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return r.RunOnce(ctx)
	}

	consecutiveErrors := 0
	for {
		err := r.RunOnce(ctx)
		switch {
		case errors.Is(err, ErrInvalidConfig):
			return err
		case err != nil:
			consecutiveErrors++
		default:
			consecutiveErrors = 0
		}

		wait := interval
		if consecutiveErrors > 0 {
			wait = time.Duration(consecutiveErrors*consecutiveErrors) * time.Second
			if wait > maxBackoff {
				wait = maxBackoff
			}
			r.logger.Warn().
				Int("consecutive_errors", consecutiveErrors).
				Dur("backoff", wait).
				Msg("backing off before next check")
		} else {
			r.logger.Info().Time("next_check", time.Now().Add(wait)).Msg("check complete")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
