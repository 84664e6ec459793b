package retention

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/codeready-toolchain/voicerelay/ent"
	"github.com/codeready-toolchain/voicerelay/ent/call"
	"github.com/codeready-toolchain/voicerelay/pkg/eventlog"
	"github.com/google/uuid"
)

// EventTypeCallEnded is the backlog type this worker consumes, appended by
// the control-plane API once the connector reports a call's media stream
// has stopped.
const EventTypeCallEnded = "call_ended"

// EventTypeCallFinalized is appended once the call's metric row and
// deletion job both exist.
const EventTypeCallFinalized = "call_finalized"

// FinalizeConfig tunes the finalize worker's poll cadence and the
// call-data retention window.
type FinalizeConfig struct {
	BatchSize          int
	PollInterval       time.Duration
	PollIntervalJitter time.Duration
	RetentionDays      int
}

type callEndedPayload struct {
	Outcome       string `json:"outcome"`
	HandoffReason string `json:"handoff_reason"`
}

// FinalizeWorker drains call_ended events: it stamps the call as ended,
// computes its CallMetric, and schedules its DeletionJob.
type FinalizeWorker struct {
	client *ent.Client
	events *eventlog.Log
	cfg    FinalizeConfig

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewFinalizeWorker builds a FinalizeWorker.
func NewFinalizeWorker(client *ent.Client, cfg FinalizeConfig) *FinalizeWorker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 90
	}
	return &FinalizeWorker{
		client: client,
		events: eventlog.New(client),
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
}

// Start begins the worker loop in a goroutine.
func (w *FinalizeWorker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for the in-flight batch.
func (w *FinalizeWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *FinalizeWorker) run(ctx context.Context) {
	defer w.wg.Done()
	log := slog.With("component", "call_finalizer")
	log.Info("call finalizer started")

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
			n, err := w.pollAndProcess(ctx)
			if err != nil {
				log.Error("finalize poll failed", "error", err)
				w.sleep(time.Second)
				continue
			}
			if n == 0 {
				w.sleep(w.pollInterval())
			}
		}
	}
}

func (w *FinalizeWorker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

func (w *FinalizeWorker) pollInterval() time.Duration {
	base := w.cfg.PollInterval
	jitter := w.cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

func (w *FinalizeWorker) pollAndProcess(ctx context.Context) (int, error) {
	events, err := w.events.Claim(ctx, EventTypeCallEnded, w.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("retention: claim call_ended batch: %w", err)
	}
	for _, evt := range events {
		w.processOne(ctx, evt)
	}
	return len(events), nil
}

func (w *FinalizeWorker) processOne(ctx context.Context, evt *ent.CallEvent) {
	log := slog.With("component", "call_finalizer", "event_id", evt.ID, "call_id", evt.CallID)

	var payload callEndedPayload
	_ = decodePayload(evt.Payload, &payload)

	update := w.client.Call.UpdateOneID(evt.CallID).SetEndedAt(time.Now())
	if payload.Outcome == "resolved" || payload.Outcome == "handoff" {
		update = update.SetOutcome(call.Outcome(payload.Outcome))
	}
	if payload.HandoffReason != "" {
		update = update.SetHandoffReason(payload.HandoffReason)
	}
	c, err := update.Save(ctx)
	if err != nil {
		w.handleFailure(ctx, evt, fmt.Errorf("stamp call ended: %w", err))
		return
	}

	if _, err := ComputeCallMetric(ctx, w.client, c.ID); err != nil {
		w.handleFailure(ctx, evt, err)
		return
	}

	if err := w.scheduleDeletion(ctx, c); err != nil {
		w.handleFailure(ctx, evt, err)
		return
	}

	if _, err := w.events.Append(ctx, c.ID, EventTypeCallFinalized, map[string]any{
		"scheduled_for_days": w.cfg.RetentionDays,
	}); err != nil {
		log.Error("failed to append call_finalized", "error", err)
	}

	if err := w.events.MarkProcessed(ctx, evt.ID); err != nil {
		log.Error("failed to mark call_ended processed", "error", err)
	}
}

// scheduleDeletion upserts the call's DeletionJob, extending scheduled_for on
// a repeat call_ended event instead of erroring on the edge's uniqueness
// constraint.
func (w *FinalizeWorker) scheduleDeletion(ctx context.Context, c *ent.Call) error {
	scheduledFor := time.Now().AddDate(0, 0, w.cfg.RetentionDays)

	existing, err := c.QueryDeletionJob().OnlyID(ctx)
	if err == nil {
		return w.client.DeletionJob.UpdateOneID(existing).
			SetScheduledFor(scheduledFor).
			ClearExecutedAt().
			Exec(ctx)
	}
	if !ent.IsNotFound(err) {
		return fmt.Errorf("retention: query existing deletion job: %w", err)
	}

	return w.client.DeletionJob.Create().
		SetID(uuid.NewString()).
		SetCallID(c.ID).
		SetTenantID(c.TenantID).
		SetScheduledFor(scheduledFor).
		Exec(ctx)
}

func (w *FinalizeWorker) handleFailure(ctx context.Context, evt *ent.CallEvent, cause error) {
	log := slog.With("component", "call_finalizer", "event_id", evt.ID)
	finalize := eventlog.ShouldFinalize(evt.ProcessingAttempts, 0)
	if err := w.events.MarkFailed(ctx, evt.ID, cause.Error(), finalize); err != nil {
		log.Error("failed to mark call_ended failed", "error", err)
	}
}

func decodePayload(raw map[string]any, out *callEndedPayload) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
