package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/spkeasy-social/spkeasy/internal/logger"
	"github.com/spkeasy-social/spkeasy/internal/telemetry"
)

// AbortError completes a job without retrying. Handlers return it (via
// Abort) when re-checked preconditions show the work is obsolete.
type AbortError struct {
	Reason string
}

func (e *AbortError) Error() string {
	return "job aborted: " + e.Reason
}

// Abort builds an AbortError with the given reason.
func Abort(reason string) error {
	return &AbortError{Reason: reason}
}

// WorkOption customises a handler registration.
type WorkOption func(*registration)

// Concurrency caps how many jobs of this name may run at once across the
// pool. Zero (the default) means no per-name cap.
func Concurrency(n int) WorkOption {
	return func(r *registration) { r.limit = n }
}

type registration struct {
	name     string
	handler  Handler
	limit    int
	inflight int
}

// workerPool polls the jobs table and dispatches claimed jobs to handlers.
// Shape follows the background-worker Start/Stop/drain convention used
// elsewhere in the codebase.
type workerPool struct {
	q *Queue

	mu        sync.Mutex
	regs      map[string]*registration
	started   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
	wg        sync.WaitGroup
}

var errNoJob = errors.New("no job available")

func newWorkerPool(q *Queue) *workerPool {
	return &workerPool{
		q:         q,
		regs:      make(map[string]*registration),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *workerPool) register(name string, handler Handler, opts []WorkOption) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return ErrAlreadyStarted
	}
	if _, exists := w.regs[name]; exists {
		return fmt.Errorf("handler for %q already registered", name)
	}

	reg := &registration{name: name, handler: handler}
	for _, opt := range opts {
		opt(reg)
	}
	w.regs[name] = reg
	return nil
}

func (w *workerPool) start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	if len(w.regs) == 0 {
		w.mu.Unlock()
		return ErrNotRegistered
	}
	w.started = true
	names := make([]string, 0, len(w.regs))
	for name := range w.regs {
		names = append(names, name)
	}
	w.mu.Unlock()

	logger.Info("Starting queue workers",
		"workers", w.q.cfg.Workers, logger.Count(len(names)))

	for i := 0; i < w.q.cfg.Workers; i++ {
		w.wg.Add(1)
		go w.run(ctx)
	}
	w.wg.Add(1)
	go w.observeDepth(ctx)

	go func() {
		w.wg.Wait()
		close(w.stoppedCh)
	}()
	return nil
}

func (w *workerPool) stop(timeout time.Duration) {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	logger.Info("Stopping queue workers")
	close(w.stopCh)

	select {
	case <-w.stoppedCh:
		logger.Info("Queue workers stopped gracefully")
	case <-time.After(timeout):
		logger.Warn("Queue worker stop timed out")
	}
}

func (w *workerPool) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		job, reg, err := w.claim(ctx)
		if err != nil {
			if !errors.Is(err, errNoJob) {
				logger.ErrorCtx(ctx, "Failed to claim job", logger.Err(err))
			}
			w.idle(ctx)
			continue
		}

		w.process(ctx, job, reg)
		w.release(reg)
	}
}

// idle waits one poll interval, or returns early on shutdown.
func (w *workerPool) idle(ctx context.Context) {
	select {
	case <-w.stopCh:
	case <-ctx.Done():
	case <-time.After(w.q.cfg.PollInterval):
	}
}

// claim atomically transitions one due job from created to active and
// increments its attempt count. On PostgreSQL the selected row is locked
// with FOR UPDATE SKIP LOCKED so concurrent workers never contend; SQLite
// serialises writers at the file level and the conditional update guards
// the transition either way.
func (w *workerPool) claim(ctx context.Context) (*Job, *registration, error) {
	names := w.eligible()
	if len(names) == 0 {
		return nil, nil, errNoJob
	}

	var job Job
	err := w.q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Table(w.q.tableRef).
			Where("name IN ? AND state = ? AND start_after <= ?",
				names, StateCreated, time.Now().UTC()).
			Order("start_after ASC, created_at ASC")
		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := query.First(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errNoJob
			}
			return err
		}

		result := tx.Table(w.q.tableRef).
			Where("id = ? AND state = ?", job.ID, StateCreated).
			Updates(map[string]any{
				"state":         StateActive,
				"attempt_count": gorm.Expr("attempt_count + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errNoJob
		}
		job.State = StateActive
		job.AttemptCount++
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	reg := w.acquire(job.Name)
	if reg == nil {
		// Per-name cap was reached between eligibility check and claim;
		// put the job back for another worker.
		w.reschedule(ctx, &job, time.Now().UTC())
		return nil, nil, errNoJob
	}
	return &job, reg, nil
}

// eligible returns the registered names currently below their per-name cap.
func (w *workerPool) eligible() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	names := make([]string, 0, len(w.regs))
	for name, reg := range w.regs {
		if reg.limit > 0 && reg.inflight >= reg.limit {
			continue
		}
		names = append(names, name)
	}
	return names
}

func (w *workerPool) acquire(name string) *registration {
	w.mu.Lock()
	defer w.mu.Unlock()

	reg := w.regs[name]
	if reg == nil {
		return nil
	}
	if reg.limit > 0 && reg.inflight >= reg.limit {
		return nil
	}
	reg.inflight++
	return reg
}

func (w *workerPool) release(reg *registration) {
	w.mu.Lock()
	reg.inflight--
	w.mu.Unlock()
}

func (w *workerPool) process(ctx context.Context, job *Job, reg *registration) {
	jobCtx := logger.WithContext(ctx,
		logger.NewJobContext(job.ID, job.Name, job.AttemptCount))
	jobCtx, span := telemetry.StartJobSpan(jobCtx, job.Name, job.ID, job.AttemptCount)
	defer span.End()

	if w.q.cipher != nil {
		decrypted, err := w.q.cipher.decryptPayload([]byte(job.Payload))
		if err != nil {
			// Undecryptable payloads can never succeed; quarantine now.
			logger.ErrorCtx(jobCtx, "Failed to decrypt job payload", logger.Err(err))
			w.fail(jobCtx, job, err, true)
			return
		}
		job.Payload = string(decrypted)
	}

	start := time.Now()
	err := reg.handler(jobCtx, job)
	duration := time.Since(start)

	switch {
	case err == nil:
		w.complete(jobCtx, job, nil)
		if w.q.metrics != nil {
			w.q.metrics.JobCompleted(job.Name, duration)
		}
		logger.DebugCtx(jobCtx, "Job completed", logger.DurationMs(start))

	case isAbort(err):
		var abort *AbortError
		errors.As(err, &abort)
		w.complete(jobCtx, job, &abort.Reason)
		if w.q.metrics != nil {
			w.q.metrics.JobAborted(job.Name)
		}
		logger.InfoCtx(jobCtx, "Job aborted", "reason", abort.Reason)

	default:
		telemetry.RecordError(jobCtx, err)
		w.fail(jobCtx, job, err, false)
	}
}

func isAbort(err error) bool {
	var abort *AbortError
	return errors.As(err, &abort)
}

func (w *workerPool) complete(ctx context.Context, job *Job, abortReason *string) {
	now := time.Now().UTC()
	err := w.q.db.WithContext(ctx).Table(w.q.tableRef).
		Where("id = ?", job.ID).
		Updates(map[string]any{
			"state":        StateCompleted,
			"completed_at": now,
			"abort_reason": abortReason,
		}).Error
	if err != nil {
		logger.ErrorCtx(ctx, "Failed to mark job completed", logger.Err(err))
	}
}

// fail retries the job, or quarantines it once attempts are exhausted (or
// immediately when the failure is permanent).
func (w *workerPool) fail(ctx context.Context, job *Job, jobErr error, permanent bool) {
	message := jobErr.Error()
	if len(message) > 4096 {
		message = message[:4096]
	}

	if permanent || job.AttemptCount >= job.RetryLimit {
		now := time.Now().UTC()
		err := w.q.db.WithContext(ctx).Table(w.q.tableRef).
			Where("id = ?", job.ID).
			Updates(map[string]any{
				"state":        StateFailed,
				"last_error":   message,
				"completed_at": now,
			}).Error
		if err != nil {
			logger.ErrorCtx(ctx, "Failed to quarantine job", logger.Err(err))
		}
		if w.q.metrics != nil {
			w.q.metrics.JobFailed(job.Name)
		}
		logger.ErrorCtx(ctx, "Job failed permanently", logger.Err(jobErr))
		return
	}

	next := time.Now().UTC().Add(retryDelay(job))
	w.rescheduleWithError(ctx, job, next, message)
	if w.q.metrics != nil {
		w.q.metrics.JobRetried(job.Name)
	}
	logger.WarnCtx(ctx, "Job failed, will retry",
		logger.Err(jobErr), "next_attempt", next.Format(time.RFC3339))
}

func (w *workerPool) reschedule(ctx context.Context, job *Job, at time.Time) {
	err := w.q.db.WithContext(ctx).Table(w.q.tableRef).
		Where("id = ?", job.ID).
		Updates(map[string]any{
			"state":         StateCreated,
			"start_after":   at,
			"attempt_count": gorm.Expr("attempt_count - 1"),
		}).Error
	if err != nil {
		logger.ErrorCtx(ctx, "Failed to reschedule job", logger.Err(err))
	}
}

func (w *workerPool) rescheduleWithError(ctx context.Context, job *Job, at time.Time, message string) {
	err := w.q.db.WithContext(ctx).Table(w.q.tableRef).
		Where("id = ?", job.ID).
		Updates(map[string]any{
			"state":       StateCreated,
			"start_after": at,
			"last_error":  message,
		}).Error
	if err != nil {
		logger.ErrorCtx(ctx, "Failed to reschedule job", logger.Err(err))
	}
}

// retryDelay computes the delay before the next attempt. With backoff the
// delay doubles per attempt already made.
func retryDelay(job *Job) time.Duration {
	delay := time.Duration(job.RetryDelaySeconds) * time.Second
	if delay <= 0 {
		delay = time.Second
	}
	if job.RetryBackoff {
		for i := 1; i < job.AttemptCount; i++ {
			delay *= 2
		}
	}
	return delay
}

// observeDepth periodically publishes per-state job counts.
func (w *workerPool) observeDepth(ctx context.Context) {
	defer w.wg.Done()

	if w.q.metrics == nil {
		return
	}

	interval := 5 * w.q.cfg.PollInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			counts, err := w.q.CountStates(ctx)
			if err != nil {
				logger.Debug("Failed to count queue states", logger.Err(err))
				continue
			}
			for _, state := range []State{StateCreated, StateActive, StateCompleted, StateFailed} {
				w.q.metrics.QueueDepth(string(state), counts[state])
			}
		}
	}
}
