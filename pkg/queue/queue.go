// Package queue implements the durable job queue carrying propagation
// intents between services. Jobs live in their own database (or PostgreSQL
// schema); delivery is at-least-once with per-job retry policies, and
// handlers are expected to be idempotent.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/spkeasy-social/spkeasy/internal/bytesize"
	"github.com/spkeasy-social/spkeasy/internal/logger"
)

// Queue errors.
var (
	ErrJobNotFound    = errors.New("job not found")
	ErrAlreadyStarted = errors.New("queue already started")
	ErrNotRegistered  = errors.New("no handler registered")
)

// Handler processes one job. Returning nil completes the job; returning an
// error schedules a retry (until the retry limit quarantines the job);
// returning Abort(reason) completes the job without retrying.
type Handler func(ctx context.Context, job *Job) error

// Metrics receives queue lifecycle observations. Implementations must
// tolerate concurrent calls. A nil Metrics disables recording.
type Metrics interface {
	JobPublished(name string)
	JobCompleted(name string, duration time.Duration)
	JobAborted(name string)
	JobRetried(name string)
	JobFailed(name string)
	QueueDepth(state string, count int64)
}

// Config controls queue behavior.
type Config struct {
	// Workers is the number of concurrent job-processing goroutines.
	// Default: 4
	Workers int `mapstructure:"workers" yaml:"workers"`

	// PollInterval is how long an idle worker waits before re-polling.
	// Default: 2s
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`

	// RetryLimit is the default number of attempts per job.
	// Default: 12
	RetryLimit int `mapstructure:"retry_limit" yaml:"retry_limit"`

	// RetryDelay is the default delay before the first retry.
	// Default: 60s
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`

	// RetryBackoff doubles the delay on every retry when true. With the
	// defaults above, twelve attempts span roughly three days.
	RetryBackoff bool `mapstructure:"retry_backoff" yaml:"retry_backoff"`

	// MaxPayloadSize caps the encoded payload size so an oversized
	// payload fails at publish instead of poisoning the queue.
	// Default: 1MiB
	MaxPayloadSize bytesize.ByteSize `mapstructure:"max_payload_size" yaml:"max_payload_size,omitempty"`

	// EncryptionKey enables at-rest encryption of sensitive payload
	// fields. Empty disables field encryption; sensitive payloads are
	// then stored in the clear and a warning is logged at startup.
	EncryptionKey string `mapstructure:"encryption_key" validate:"omitempty,min=32" yaml:"encryption_key,omitempty"`

	// Schema is the PostgreSQL schema holding the jobs table. It lets
	// PublishTx address the table from a transaction opened on another
	// service's connection (same physical database).
	Schema string `mapstructure:"schema" yaml:"schema,omitempty"`
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.RetryLimit <= 0 {
		c.RetryLimit = 12
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 60 * time.Second
	}
	if c.MaxPayloadSize == 0 {
		c.MaxPayloadSize = bytesize.MiB
	}
}

// Queue is a durable multi-named job queue over a GORM database.
type Queue struct {
	db       *gorm.DB
	cfg      Config
	cipher   *fieldCipher
	tableRef string
	metrics  Metrics

	worker *workerPool
}

// New creates a queue on db. The jobs table must already be migrated
// (store.Open with the Job model).
func New(db *gorm.DB, cfg Config, metrics Metrics) (*Queue, error) {
	cfg.ApplyDefaults()

	q := &Queue{
		db:       db,
		cfg:      cfg,
		tableRef: Job{}.TableName(),
		metrics:  metrics,
	}
	if cfg.Schema != "" && db.Dialector.Name() == "postgres" {
		q.tableRef = cfg.Schema + "." + Job{}.TableName()
	}

	if cfg.EncryptionKey != "" {
		cipher, err := newFieldCipher(cfg.EncryptionKey)
		if err != nil {
			return nil, err
		}
		q.cipher = cipher
	} else {
		logger.Warn("Queue field encryption disabled, sensitive payload fields will be stored in the clear")
	}

	q.worker = newWorkerPool(q)
	return q, nil
}

// DB returns the queue's database connection (used by readiness probes).
func (q *Queue) DB() *gorm.DB {
	return q.db
}

// PublishOption customises a published job.
type PublishOption func(*publishOptions)

type publishOptions struct {
	startAfter   time.Time
	retryLimit   int
	retryDelay   time.Duration
	retryBackoff *bool
}

// StartAfter delays the job's visibility until t.
func StartAfter(t time.Time) PublishOption {
	return func(o *publishOptions) { o.startAfter = t }
}

// RetryLimit overrides the default attempt count.
func RetryLimit(n int) PublishOption {
	return func(o *publishOptions) { o.retryLimit = n }
}

// RetryDelay overrides the default first-retry delay.
func RetryDelay(d time.Duration) PublishOption {
	return func(o *publishOptions) { o.retryDelay = d }
}

// RetryBackoff overrides the default backoff behavior.
func RetryBackoff(enabled bool) PublishOption {
	return func(o *publishOptions) { o.retryBackoff = &enabled }
}

// Publish enqueues one job and returns its id.
func (q *Queue) Publish(ctx context.Context, name string, payload any, opts ...PublishOption) (string, error) {
	return q.publish(q.db.WithContext(ctx), name, payload, opts)
}

// PublishTx enqueues one job inside a caller-owned transaction, so domain
// mutations and the jobs they imply commit or roll back together. The
// transaction's connection must reach the jobs table (same SQLite file, or
// same PostgreSQL database with the queue schema configured).
func (q *Queue) PublishTx(tx *gorm.DB, name string, payload any, opts ...PublishOption) (string, error) {
	return q.publish(tx, name, payload, opts)
}

// BulkPublish atomically enqueues one job per payload under the same name
// and options, returning the ids in payload order.
func (q *Queue) BulkPublish(ctx context.Context, name string, payloads []any, opts ...PublishOption) ([]string, error) {
	if len(payloads) == 0 {
		return nil, nil
	}

	jobs := make([]*Job, 0, len(payloads))
	ids := make([]string, 0, len(payloads))
	for _, payload := range payloads {
		job, err := q.buildJob(name, payload, opts)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
		ids = append(ids, job.ID)
	}

	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Table(q.tableRef).Create(jobs).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to publish %d jobs to %q: %w", len(jobs), name, err)
	}

	if q.metrics != nil {
		for range jobs {
			q.metrics.JobPublished(name)
		}
	}
	logger.Debug("Published jobs", logger.JobName(name), logger.Count(len(jobs)))
	return ids, nil
}

func (q *Queue) publish(tx *gorm.DB, name string, payload any, opts []PublishOption) (string, error) {
	job, err := q.buildJob(name, payload, opts)
	if err != nil {
		return "", err
	}

	if err := tx.Table(q.tableRef).Create(job).Error; err != nil {
		return "", fmt.Errorf("failed to publish job to %q: %w", name, err)
	}

	if q.metrics != nil {
		q.metrics.JobPublished(name)
	}
	logger.Debug("Published job", logger.JobID(job.ID), logger.JobName(name))
	return job.ID, nil
}

func (q *Queue) buildJob(name string, payload any, opts []PublishOption) (*Job, error) {
	o := publishOptions{
		startAfter: time.Now().UTC(),
		retryLimit: q.cfg.RetryLimit,
		retryDelay: q.cfg.RetryDelay,
	}
	for _, opt := range opts {
		opt(&o)
	}
	backoff := q.cfg.RetryBackoff
	if o.retryBackoff != nil {
		backoff = *o.retryBackoff
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload for %q: %w", name, err)
	}
	if carrier, ok := payload.(SensitiveCarrier); ok && q.cipher != nil {
		data, err = q.cipher.encryptFields(data, carrier.SensitiveFields())
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt payload for %q: %w", name, err)
		}
	}
	if uint64(len(data)) > q.cfg.MaxPayloadSize.Uint64() {
		return nil, fmt.Errorf("payload for %q is %s, exceeds the %s limit",
			name, bytesize.ByteSize(len(data)), q.cfg.MaxPayloadSize)
	}

	return &Job{
		ID:                uuid.New().String(),
		Name:              name,
		State:             StateCreated,
		Payload:           string(data),
		StartAfter:        o.startAfter,
		RetryLimit:        o.retryLimit,
		RetryDelaySeconds: int(o.retryDelay.Seconds()),
		RetryBackoff:      backoff,
	}, nil
}

// GetJob fetches a job by id.
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	var job Job
	err := q.db.WithContext(ctx).Table(q.tableRef).Where("id = ?", id).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// ListJobs returns jobs filtered by state and optionally by name, newest
// first. Used by the queue admin subcommands.
func (q *Queue) ListJobs(ctx context.Context, state State, name string, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 100
	}
	query := q.db.WithContext(ctx).Table(q.tableRef).Where("state = ?", state)
	if name != "" {
		query = query.Where("name = ?", name)
	}
	var jobs []*Job
	if err := query.Order("created_at DESC").Limit(limit).Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// RetryJob resets a failed job so workers pick it up again.
func (q *Queue) RetryJob(ctx context.Context, id string) error {
	result := q.db.WithContext(ctx).Table(q.tableRef).
		Where("id = ? AND state = ?", id, StateFailed).
		Updates(map[string]any{
			"state":         StateCreated,
			"start_after":   time.Now().UTC(),
			"attempt_count": 0,
			"completed_at":  nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// CountStates returns job counts grouped by state (queue depth for
// readiness checks and metrics).
func (q *Queue) CountStates(ctx context.Context) (map[State]int64, error) {
	type row struct {
		State State
		N     int64
	}
	var rows []row
	err := q.db.WithContext(ctx).Table(q.tableRef).
		Select("state, count(*) as n").Group("state").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[State]int64, len(rows))
	for _, r := range rows {
		counts[r.State] = r.N
	}
	return counts, nil
}

// Work registers a handler for a job name. Must be called before Start.
func (q *Queue) Work(name string, handler Handler, opts ...WorkOption) error {
	return q.worker.register(name, handler, opts)
}

// Start launches the polling worker pool.
func (q *Queue) Start(ctx context.Context) error {
	return q.worker.start(ctx)
}

// Stop drains in-flight jobs and shuts the worker pool down, waiting at
// most timeout.
func (q *Queue) Stop(timeout time.Duration) {
	q.worker.stop(timeout)
}
