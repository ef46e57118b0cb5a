// Package scheduler runs the daily reconciliation job.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	reconapp "github.com/Kylin-001/HKYG-sub002/internal/application/reconciliation"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

// Reconciler reconciles one calendar day for one payment type
type Reconciler interface {
	Reconcile(ctx context.Context, date time.Time, paymentType payment.PaymentType) (*reconapp.BatchDTO, error)
}

// PaymentTypeSource lists the payment types to reconcile
type PaymentTypeSource interface {
	Types() []payment.PaymentType
}

// ReconciliationTriggerConfig holds configuration for the daily trigger
type ReconciliationTriggerConfig struct {
	// Hour and Minute are the wall-clock run time in Location
	Hour   int
	Minute int

	Location *time.Location

	// CheckInterval is how often to check if it's time to run
	CheckInterval time.Duration

	// JobTimeout bounds one run across all payment types
	JobTimeout time.Duration
}

// DefaultReconciliationTriggerConfig returns default trigger configuration
func DefaultReconciliationTriggerConfig() ReconciliationTriggerConfig {
	return ReconciliationTriggerConfig{
		Hour:          2, // 2am
		Minute:        0,
		Location:      time.UTC,
		CheckInterval: time.Minute,
		JobTimeout:    30 * time.Minute,
	}
}

// Validate checks the configuration
func (c ReconciliationTriggerConfig) Validate() error {
	if c.Hour < 0 || c.Hour > 23 {
		return fmt.Errorf("%w: hour must be 0-23, got %d", ErrInvalidConfig, c.Hour)
	}
	if c.Minute < 0 || c.Minute > 59 {
		return fmt.Errorf("%w: minute must be 0-59, got %d", ErrInvalidConfig, c.Minute)
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("%w: check interval must be positive", ErrInvalidConfig)
	}
	return nil
}

// RunSummary is the outcome of one trigger run
type RunSummary struct {
	Date      string
	Completed []string
	Skipped   []payment.PaymentType
	Failed    map[payment.PaymentType]error
}

// ReconciliationTrigger reconciles "yesterday" for every payment type once
// a day. It only calls the engine's public API.
type ReconciliationTrigger struct {
	config     ReconciliationTriggerConfig
	reconciler Reconciler
	types      PaymentTypeSource
	logger     *zap.Logger
	now        func() time.Time

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.Mutex
	isRunning   bool
	inProgress  bool
	lastRunDate string // Track which date we last ran for
	lastRunAt   *time.Time
}

// NewReconciliationTrigger creates a new trigger
func NewReconciliationTrigger(
	config ReconciliationTriggerConfig,
	reconciler Reconciler,
	types PaymentTypeSource,
	logger *zap.Logger,
) (*ReconciliationTrigger, error) {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.CheckInterval == 0 {
		config.CheckInterval = time.Minute
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationTrigger{
		config:     config,
		reconciler: reconciler,
		types:      types,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Start starts the trigger loop
func (t *ReconciliationTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Reconciliation trigger started",
		zap.Int("hour", t.config.Hour),
		zap.Int("minute", t.config.Minute),
		zap.String("location", t.config.Location.String()),
		zap.Duration("check_interval", t.config.CheckInterval),
	)
	return nil
}

// Stop stops the trigger and waits for an active run to finish
func (t *ReconciliationTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Reconciliation trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *ReconciliationTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.checkAndTrigger(ctx)
		}
	}
}

// shouldRun checks if the trigger should run at the given time
func (t *ReconciliationTrigger) shouldRun(now time.Time) bool {
	now = now.In(t.config.Location)
	return now.Hour() == t.config.Hour && now.Minute() == t.config.Minute
}

// checkAndTrigger runs the job once per calendar day at the configured time
func (t *ReconciliationTrigger) checkAndTrigger(ctx context.Context) {
	now := t.now().In(t.config.Location)
	currentDate := now.Format("2006-01-02")

	t.mu.Lock()
	if t.lastRunDate == currentDate || !t.shouldRun(now) {
		t.mu.Unlock()
		return
	}
	t.lastRunDate = currentDate
	t.mu.Unlock()

	if _, err := t.RunFor(ctx, now.AddDate(0, 0, -1)); err != nil && !errors.Is(err, ErrRunInProgress) {
		t.logger.Error("Scheduled reconciliation finished with failures", zap.Error(err))
	}
}

// TriggerNow reconciles yesterday immediately
func (t *ReconciliationTrigger) TriggerNow(ctx context.Context) (*RunSummary, error) {
	t.mu.Lock()
	running := t.isRunning
	t.mu.Unlock()
	if !running {
		return nil, ErrSchedulerNotRunning
	}
	return t.RunFor(ctx, t.now().In(t.config.Location).AddDate(0, 0, -1))
}

// RunFor reconciles date for every payment type. Types with a batch already
// running are skipped; one failing type does not stop the others.
func (t *ReconciliationTrigger) RunFor(ctx context.Context, date time.Time) (*RunSummary, error) {
	t.mu.Lock()
	if t.inProgress {
		t.mu.Unlock()
		return nil, ErrRunInProgress
	}
	t.inProgress = true
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.inProgress = false
		now := t.now()
		t.lastRunAt = &now
		t.mu.Unlock()
	}()

	if t.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.JobTimeout)
		defer cancel()
	}

	day := date.In(t.config.Location)
	summary := &RunSummary{
		Date:   day.Format("2006-01-02"),
		Failed: make(map[payment.PaymentType]error),
	}
	t.logger.Info("Triggering daily reconciliation", zap.String("date", summary.Date))

	var errs []error
	for _, paymentType := range t.types.Types() {
		batch, err := t.reconciler.Reconcile(ctx, day, paymentType)
		switch {
		case err == nil:
			summary.Completed = append(summary.Completed, batch.BatchNo)
			t.logger.Info("Daily reconciliation completed",
				zap.String("payment_type", paymentType.String()),
				zap.String("batch_no", batch.BatchNo),
				zap.Int("diffs", batch.DiffCount))
		case shared.IsReconciliationConflict(err):
			summary.Skipped = append(summary.Skipped, paymentType)
			t.logger.Info("Reconciliation already running, skipped",
				zap.String("payment_type", paymentType.String()))
		default:
			summary.Failed[paymentType] = err
			errs = append(errs, fmt.Errorf("%s: %w", paymentType, err))
			t.logger.Error("Daily reconciliation failed",
				zap.String("payment_type", paymentType.String()),
				zap.Error(err))
		}
	}
	return summary, errors.Join(errs...)
}

// GetStatus returns the trigger state for diagnostics
func (t *ReconciliationTrigger) GetStatus() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	status := map[string]any{
		"is_running":    t.isRunning,
		"in_progress":   t.inProgress,
		"hour":          t.config.Hour,
		"minute":        t.config.Minute,
		"location":      t.config.Location.String(),
		"last_run_date": t.lastRunDate,
	}
	if t.lastRunAt != nil {
		status["last_run_at"] = *t.lastRunAt
	}
	return status
}
