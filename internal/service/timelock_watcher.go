package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lapolinarweb/contracts/internal/account"
	"github.com/lapolinarweb/contracts/internal/repository"
)

const scanTimeout = 30 * time.Second

// TimelockWatcher periodically reports timelock changes that can be
// executed. It never executes them: that takes a self-call from the account.
type TimelockWatcher struct {
	repo         repository.AccountRepository
	expireWindow time.Duration
	clock        account.Clock
	logger       *slog.Logger
	report       func(executable int)

	cron *cron.Cron

	mu       sync.Mutex
	notified map[string]time.Time
}

// NewTimelockWatcher creates a watcher. report receives the number of
// executable changes after every scan.
func NewTimelockWatcher(
	repo repository.AccountRepository,
	expireWindow time.Duration,
	clock account.Clock,
	logger *slog.Logger,
	report func(executable int),
) *TimelockWatcher {
	if clock == nil {
		clock = account.SystemClock{}
	}
	if report == nil {
		report = func(int) {}
	}
	return &TimelockWatcher{
		repo:         repo,
		expireWindow: expireWindow,
		clock:        clock,
		logger:       logger,
		report:       report,
		cron:         cron.New(),
		notified:     make(map[string]time.Time),
	}
}

// Start schedules scans, e.g. "@every 1m".
func (w *TimelockWatcher) Start(schedule string) error {
	_, err := w.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
		defer cancel()
		if _, err := w.Scan(ctx); err != nil {
			w.logger.Error("timelock scan failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return err
	}
	w.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running scan.
func (w *TimelockWatcher) Stop() {
	<-w.cron.Stop().Done()
}

// Scan counts executable changes and logs each one once when it unlocks.
func (w *TimelockWatcher) Scan(ctx context.Context) (int, error) {
	changes, err := w.repo.ListPendingChanges(ctx)
	if err != nil {
		return 0, err
	}

	now := w.clock.Now()
	w.mu.Lock()
	defer w.mu.Unlock()

	live := make(map[string]time.Time, len(changes))
	executable := 0
	for _, c := range changes {
		pending := account.PendingChange{UnlockAt: c.UnlockAt}
		if pending.StateAt(now, w.expireWindow) != account.ChangeExecutable {
			continue
		}
		executable++

		key := c.Account + "/" + c.Field
		live[key] = c.UnlockAt
		if seen, ok := w.notified[key]; ok && seen.Equal(c.UnlockAt) {
			continue
		}
		w.logger.Info("timelock change executable",
			slog.String("account", c.Account),
			slog.String("field", c.Field),
			slog.Time("unlock_at", c.UnlockAt),
		)
	}
	w.notified = live

	w.report(executable)
	return executable, nil
}
