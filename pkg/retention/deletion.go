package retention

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/codeready-toolchain/voicerelay/ent"
	"github.com/codeready-toolchain/voicerelay/ent/deletionjob"
)

// DeletionConfig tunes the retention deletion loop.
type DeletionConfig struct {
	BatchSize          int
	PollInterval       time.Duration
	PollIntervalJitter time.Duration
}

// DeletionWorker claims due DeletionJob rows and purges the underlying call,
// unless the call has since been placed under legal hold.
type DeletionWorker struct {
	client *ent.Client
	cfg    DeletionConfig

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewDeletionWorker builds a DeletionWorker.
func NewDeletionWorker(client *ent.Client, cfg DeletionConfig) *DeletionWorker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Minute
	}
	return &DeletionWorker{client: client, cfg: cfg, stopCh: make(chan struct{})}
}

// Start begins the deletion loop in a goroutine.
func (w *DeletionWorker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for the in-flight batch.
func (w *DeletionWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *DeletionWorker) run(ctx context.Context) {
	defer w.wg.Done()
	log := slog.With("component", "retention_deletion")
	log.Info("retention deletion worker started")

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
			n, err := w.pollAndProcess(ctx)
			if err != nil {
				log.Error("retention poll failed", "error", err)
				w.sleep(time.Second)
				continue
			}
			if n == 0 {
				w.sleep(w.pollInterval())
			}
		}
	}
}

func (w *DeletionWorker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

func (w *DeletionWorker) pollInterval() time.Duration {
	base := w.cfg.PollInterval
	jitter := w.cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

func (w *DeletionWorker) pollAndProcess(ctx context.Context) (int, error) {
	tx, err := w.client.Tx(ctx)
	if err != nil {
		return 0, fmt.Errorf("retention: begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	jobs, err := tx.DeletionJob.Query().
		Where(deletionjob.ScheduledForLTE(time.Now()), deletionjob.ExecutedAtIsNil()).
		Limit(w.cfg.BatchSize).
		ForUpdate(entsql.WithLockAction(entsql.SkipLocked)).
		All(ctx)
	if err != nil {
		return 0, fmt.Errorf("retention: claim due jobs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("retention: commit claim: %w", err)
	}

	for _, job := range jobs {
		w.processOne(ctx, job)
	}
	return len(jobs), nil
}

func (w *DeletionWorker) processOne(ctx context.Context, job *ent.DeletionJob) {
	log := slog.With("component", "retention_deletion", "deletion_job_id", job.ID, "call_id", job.CallID)

	c, err := w.client.Call.Get(ctx, job.CallID)
	if err != nil && !ent.IsNotFound(err) {
		log.Error("failed to load call", "error", err)
		return
	}

	if err == nil && c.LegalHold {
		log.Info("skipping deletion: call is under legal hold")
		if err := w.markExecuted(ctx, job.ID); err != nil {
			log.Error("failed to mark deletion job executed", "error", err)
		}
		return
	}

	if err := w.markExecuted(ctx, job.ID); err != nil {
		log.Error("failed to mark deletion job executed", "error", err)
		return
	}

	// Deleting the call cascades away this job row, so mark executed first.
	if err == nil {
		if err := w.client.Call.DeleteOne(c).Exec(ctx); err != nil {
			log.Error("failed to delete call", "error", err)
		}
	}
}

func (w *DeletionWorker) markExecuted(ctx context.Context, jobID string) error {
	return w.client.DeletionJob.UpdateOneID(jobID).
		SetExecutedAt(time.Now()).
		Exec(ctx)
}
