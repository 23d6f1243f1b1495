//go:build integration

package postgres_test

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/spkeasy-social/spkeasy/pkg/models"
	"github.com/spkeasy-social/spkeasy/pkg/queue"
)

// TestQueueClaimContention drives many workers over one batch of jobs. The
// SKIP LOCKED claim path must hand every job to exactly one worker.
func TestQueueClaimContention(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t, "it_queue_contention", queue.Config{Workers: 8})

	var mu sync.Mutex
	executions := make(map[string]int)

	err := q.Work("test.contention", func(ctx context.Context, job *queue.Job) error {
		mu.Lock()
		executions[job.ID]++
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("failed to register handler: %v", err)
	}

	const jobs = 40
	ids := make(map[string]bool, jobs)
	for i := 0; i < jobs; i++ {
		id, err := q.Publish(ctx, "test.contention", map[string]int{"n": i})
		if err != nil {
			t.Fatalf("failed to publish job %d: %v", i, err)
		}
		ids[id] = true
	}

	if err := q.Start(ctx); err != nil {
		t.Fatalf("failed to start workers: %v", err)
	}
	defer q.Stop(5 * time.Second)

	waitFor(t, 30*time.Second, "all jobs to complete", func() bool {
		counts, err := q.CountStates(ctx)
		if err != nil {
			return false
		}
		return counts[queue.StateCompleted] == jobs
	})

	mu.Lock()
	defer mu.Unlock()
	if len(executions) != jobs {
		t.Fatalf("expected %d distinct jobs executed, got %d", jobs, len(executions))
	}
	for id, n := range executions {
		if !ids[id] {
			t.Errorf("executed unknown job %s", id)
		}
		if n != 1 {
			t.Errorf("job %s executed %d times, want exactly once", id, n)
		}
	}
}

// TestQueueRetriesUntilSuccess fails a job twice and lets the third attempt
// succeed.
func TestQueueRetriesUntilSuccess(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t, "it_queue_retries", queue.Config{Workers: 2})

	var attempts atomic.Int32
	err := q.Work("test.retries", func(ctx context.Context, job *queue.Job) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient failure")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to register handler: %v", err)
	}

	id, err := q.Publish(ctx, "test.retries", map[string]string{"k": "v"},
		queue.RetryLimit(5),
		queue.RetryDelay(10*time.Millisecond),
		queue.RetryBackoff(false))
	if err != nil {
		t.Fatalf("failed to publish: %v", err)
	}

	if err := q.Start(ctx); err != nil {
		t.Fatalf("failed to start workers: %v", err)
	}
	defer q.Stop(5 * time.Second)

	waitFor(t, 30*time.Second, "job to complete", func() bool {
		job, err := q.GetJob(ctx, id)
		return err == nil && job.State == queue.StateCompleted
	})

	job, err := q.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("failed to fetch job: %v", err)
	}
	if job.AttemptCount != 3 {
		t.Errorf("expected 3 attempts, got %d", job.AttemptCount)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("handler ran %d times, want 3", got)
	}
}

// TestQueueQuarantineAndRequeue exhausts a job's retry budget, verifies it
// is quarantined with its error, then requeues it via the admin path.
func TestQueueQuarantineAndRequeue(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t, "it_queue_quarantine", queue.Config{Workers: 2})

	var healed atomic.Bool
	err := q.Work("test.quarantine", func(ctx context.Context, job *queue.Job) error {
		if healed.Load() {
			return nil
		}
		return errors.New("downstream unavailable")
	})
	if err != nil {
		t.Fatalf("failed to register handler: %v", err)
	}

	id, err := q.Publish(ctx, "test.quarantine", map[string]string{"k": "v"},
		queue.RetryLimit(2),
		queue.RetryDelay(10*time.Millisecond),
		queue.RetryBackoff(false))
	if err != nil {
		t.Fatalf("failed to publish: %v", err)
	}

	if err := q.Start(ctx); err != nil {
		t.Fatalf("failed to start workers: %v", err)
	}
	defer q.Stop(5 * time.Second)

	waitFor(t, 30*time.Second, "job to quarantine", func() bool {
		job, err := q.GetJob(ctx, id)
		return err == nil && job.State == queue.StateFailed
	})

	job, err := q.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("failed to fetch job: %v", err)
	}
	if job.LastError == nil || !strings.Contains(*job.LastError, "downstream unavailable") {
		t.Errorf("expected last error to carry the handler failure, got %v", job.LastError)
	}

	failed, err := q.ListJobs(ctx, queue.StateFailed, "test.quarantine", 10)
	if err != nil {
		t.Fatalf("failed to list failed jobs: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("expected 1 quarantined job, got %d", len(failed))
	}

	healed.Store(true)
	if err := q.RetryJob(ctx, id); err != nil {
		t.Fatalf("failed to requeue job: %v", err)
	}

	waitFor(t, 30*time.Second, "requeued job to complete", func() bool {
		job, err := q.GetJob(ctx, id)
		return err == nil && job.State == queue.StateCompleted
	})
}

// TestQueueEncryptsSensitiveFields publishes a payload carrying key material
// and verifies the stored row is unreadable while the handler still sees the
// plaintext.
func TestQueueEncryptsSensitiveFields(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t, "it_queue_crypto", queue.Config{
		Workers:       2,
		EncryptionKey: "integration-test-encryption-key-0123456789",
	})

	secret := []byte("ml-kem-private-key-material")
	payload := models.UpdateSessionKeysJob{
		PrevKeyID:      "prev-pair",
		NewKeyID:       "new-pair",
		PrevPrivateKey: secret,
		NewPublicKey:   []byte("public"),
	}

	id, err := q.Publish(ctx, "test.crypto", payload)
	if err != nil {
		t.Fatalf("failed to publish: %v", err)
	}

	stored, err := q.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("failed to fetch job: %v", err)
	}
	if !strings.Contains(stored.Payload, "enc:v1:") {
		t.Error("stored payload is missing the encryption marker")
	}
	if strings.Contains(stored.Payload, base64.StdEncoding.EncodeToString(secret)) {
		t.Error("stored payload leaks the private key")
	}
	if !strings.Contains(stored.Payload, "prev-pair") {
		t.Error("non-sensitive fields should stay readable for operators")
	}

	received := make(chan models.UpdateSessionKeysJob, 1)
	err = q.Work("test.crypto", func(ctx context.Context, job *queue.Job) error {
		var got models.UpdateSessionKeysJob
		if err := job.Unmarshal(&got); err != nil {
			return err
		}
		received <- got
		return nil
	})
	if err != nil {
		t.Fatalf("failed to register handler: %v", err)
	}

	if err := q.Start(ctx); err != nil {
		t.Fatalf("failed to start workers: %v", err)
	}
	defer q.Stop(5 * time.Second)

	select {
	case got := <-received:
		if string(got.PrevPrivateKey) != string(secret) {
			t.Errorf("handler saw %q, want the decrypted key material", got.PrevPrivateKey)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("timed out waiting for the handler")
	}
}

// TestQueueTransactionalPublish shows PublishTx riding a transaction opened
// on another service's connection: rollback takes the job with it, commit
// makes it durable. This is the mechanism that keeps domain mutations and
// their propagation jobs atomic.
func TestQueueTransactionalPublish(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t, "it_queue_txq", queue.Config{Workers: 1})

	// A different service's connection on the same physical database.
	serviceDB := openDB(t, "it_queue_txsvc")

	boom := errors.New("abort the transaction")
	err := serviceDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := q.PublishTx(tx, "test.tx", map[string]string{"k": "rollback"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the transaction to roll back, got %v", err)
	}

	counts, err := q.CountStates(ctx)
	if err != nil {
		t.Fatalf("failed to count states: %v", err)
	}
	if counts[queue.StateCreated] != 0 {
		t.Fatalf("rolled-back publish left %d jobs behind", counts[queue.StateCreated])
	}

	err = serviceDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := q.PublishTx(tx, "test.tx", map[string]string{"k": "commit"})
		return err
	})
	if err != nil {
		t.Fatalf("failed to publish transactionally: %v", err)
	}

	jobs, err := q.ListJobs(ctx, queue.StateCreated, "test.tx", 10)
	if err != nil {
		t.Fatalf("failed to list jobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 committed job, got %d", len(jobs))
	}
}

// TestQueueDelayedVisibility verifies a job published with StartAfter stays
// invisible to workers until it is due.
func TestQueueDelayedVisibility(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t, "it_queue_delay", queue.Config{Workers: 2})

	var ran atomic.Bool
	err := q.Work("test.delay", func(ctx context.Context, job *queue.Job) error {
		ran.Store(true)
		return nil
	})
	if err != nil {
		t.Fatalf("failed to register handler: %v", err)
	}

	delay := 1500 * time.Millisecond
	id, err := q.Publish(ctx, "test.delay", map[string]string{"k": "v"},
		queue.StartAfter(time.Now().UTC().Add(delay)))
	if err != nil {
		t.Fatalf("failed to publish: %v", err)
	}

	if err := q.Start(ctx); err != nil {
		t.Fatalf("failed to start workers: %v", err)
	}
	defer q.Stop(5 * time.Second)

	time.Sleep(300 * time.Millisecond)
	if ran.Load() {
		t.Fatal("job ran before its start_after")
	}

	waitFor(t, 30*time.Second, "delayed job to complete", func() bool {
		job, err := q.GetJob(ctx, id)
		return err == nil && job.State == queue.StateCompleted
	})
	if !ran.Load() {
		t.Fatal("job never ran")
	}
}
