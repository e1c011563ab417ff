package payouts

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/earn-network/payout-engine/internal/system"
	"github.com/earn-network/payout-engine/pkg/logger"
)

// Runner triggers a scheduler job on a fixed cron schedule (with seconds
// precision, so schedules can be staggered inside a minute). A job that
// outlasts its interval is never overlapped: triggers that fire while the
// previous invocation is still running are skipped.
type Runner struct {
	name string
	spec string
	job  func(ctx context.Context) error
	log  *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

var _ system.Service = (*Runner)(nil)

// NewRunner creates a lifecycle-managed cron runner.
func NewRunner(name, spec string, job func(ctx context.Context) error, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.NewDefault(name)
	}
	return &Runner{name: name, spec: spec, job: job, log: log}
}

func (r *Runner) Name() string { return r.name }

func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{r.log})),
	)
	_, err := c.AddFunc(r.spec, func() {
		if err := r.job(runCtx); err != nil {
			r.log.WithError(err).Warnf("%s run failed", r.name)
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("schedule %s (%q): %w", r.name, r.spec, err)
	}

	c.Start()
	r.cron = c
	r.cancel = cancel
	r.running = true
	r.log.Infof("%s scheduled (%s)", r.name, r.spec)
	return nil
}

// cronLogger adapts the structured logger to the cron framework's interface
// so skipped triggers are visible in the logs.
type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if len(keysAndValues) > 0 {
		c.log.WithField("detail", fmt.Sprint(keysAndValues...)).Info(msg)
		return
	}
	c.log.Info(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	if len(keysAndValues) > 0 {
		c.log.WithError(err).WithField("detail", fmt.Sprint(keysAndValues...)).Error(msg)
		return
	}
	c.log.WithError(err).Error(msg)
}

func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	c := r.cron
	cancel := r.cancel
	r.cron = nil
	r.cancel = nil
	r.running = false
	r.mu.Unlock()

	cancel()
	stopped := c.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
