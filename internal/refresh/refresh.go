package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"bookcal/internal/observe"
	"bookcal/internal/session"
)

const (
	EventTick = "refresh.tick"

	defaultJobTimeout = 30 * time.Second
)

// Reloader is what a refresh tick drives. *session.Session satisfies it.
type Reloader interface {
	Reload(ctx context.Context) (session.Snapshot, error)
}

// Scheduler reloads the displayed period on a cron schedule.
type Scheduler struct {
	spec    string
	target  Reloader
	obs     observe.Observer
	timeout time.Duration
	cron    *cron.Cron

	base      context.Context
	onSuccess func(context.Context, session.Snapshot)
}

// New parses spec (standard five-field cron, or descriptors such as
// "@every 5m") and prepares a scheduler. Nothing runs until Run.
func New(spec string, target Reloader, obs observe.Observer) (*Scheduler, error) {
	s := &Scheduler{
		spec:    spec,
		target:  target,
		obs:     observe.OrNop(obs),
		timeout: defaultJobTimeout,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		base:    context.Background(),
	}
	if _, err := s.cron.AddFunc(spec, func() { s.Tick(s.base) }); err != nil {
		return nil, fmt.Errorf("refresh: bad schedule %q: %w", spec, err)
	}
	return s, nil
}

// OnSuccess registers fn to run after every tick whose reload was applied.
// It receives the tick's parent context, not the reload timeout. Call it
// before Run.
func (s *Scheduler) OnSuccess(fn func(context.Context, session.Snapshot)) {
	s.onSuccess = fn
}

// Run starts the cron loop and blocks until ctx is done. Scheduled ticks
// run under ctx, and running jobs are allowed to finish before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.base = ctx
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

// Tick performs one reload with a bounded timeout and reports the outcome.
// A superseded reload is not an error. The OnSuccess hook runs only when
// this tick's result was applied.
func (s *Scheduler) Tick(ctx context.Context) error {
	reloadCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	snap, err := s.target.Reload(reloadCtx)

	sev := observe.SeverityDebug
	applied := err == nil
	switch {
	case errors.Is(err, session.ErrStale):
		err = nil
	case err != nil:
		sev = observe.SeverityWarn
	}
	s.obs.Observe(observe.Event{
		Name:     EventTick,
		Severity: sev,
		Err:      err,
		Attrs: []any{
			"schedule", s.spec,
			"period_start", snap.Period.Start.String(),
			"generation", snap.Generation,
			"elapsed", time.Since(started),
		},
	})

	if applied && s.onSuccess != nil {
		s.onSuccess(ctx, snap)
	}
	return err
}
