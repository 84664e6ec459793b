// Package claimer implements the dispatch claimer: it drains
// "handoff_dispatched" events and, for each, performs the one-shot dispatch
// claim, enqueues a launch job, and appends the follow-on events.
package claimer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/codeready-toolchain/voicerelay/ent"
	"github.com/codeready-toolchain/voicerelay/pkg/apperrors"
	"github.com/codeready-toolchain/voicerelay/pkg/dispatch"
	"github.com/codeready-toolchain/voicerelay/pkg/eventlog"
	"github.com/codeready-toolchain/voicerelay/pkg/launchjob"
	"github.com/codeready-toolchain/voicerelay/pkg/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// EventTypeDispatched is the backlog type this worker consumes.
const EventTypeDispatched = "handoff_dispatched"

// EventTypeClaimed and EventTypeBootstrapReady are appended on success.
const (
	EventTypeClaimed        = "dispatch_claimed"
	EventTypeBootstrapReady = "agent_session_bootstrap_ready"
)

// Config tunes the worker's poll cadence and retry ceiling.
type Config struct {
	BatchSize          int
	PollInterval       time.Duration
	PollIntervalJitter time.Duration
	MaxAttempts        int
	ConnectorURL       func(room string) string
	Tracer             *telemetry.Tracer
	Meters             *telemetry.Meters
}

type dispatchedPayload struct {
	DispatchID string `json:"dispatch_id"`
}

// Worker polls for handoff_dispatched events and claims each dispatch.
type Worker struct {
	id         string
	events     *eventlog.Log
	dispatches *dispatch.Store
	jobs       *launchjob.Store
	cfg        Config

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a claimer Worker.
func New(id string, client *ent.Client, cfg Config) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = eventlog.MaxAttemptsDefault
	}
	if cfg.ConnectorURL == nil {
		cfg.ConnectorURL = func(room string) string { return "" }
	}
	return &Worker{
		id:         id,
		events:     eventlog.New(client),
		dispatches: dispatch.New(client),
		jobs:       launchjob.New(client),
		cfg:        cfg,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the worker loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for the in-flight batch.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	log := slog.With("component", "dispatch_claimer", "worker_id", w.id)
	log.Info("dispatch claimer started")

	for {
		select {
		case <-w.stopCh:
			log.Info("dispatch claimer shutting down")
			return
		case <-ctx.Done():
			return
		default:
			n, err := w.pollAndProcess(ctx)
			if err != nil {
				log.Error("claimer poll failed", "error", err)
				w.sleep(time.Second)
				continue
			}
			if n == 0 {
				w.sleep(w.pollInterval())
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

func (w *Worker) pollInterval() time.Duration {
	base := w.cfg.PollInterval
	jitter := w.cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

func (w *Worker) pollAndProcess(ctx context.Context) (int, error) {
	events, err := w.events.Claim(ctx, EventTypeDispatched, w.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claimer: claim batch: %w", err)
	}
	for _, evt := range events {
		w.processOne(ctx, evt)
	}
	return len(events), nil
}

func (w *Worker) processOne(ctx context.Context, evt *ent.CallEvent) {
	log := slog.With("component", "dispatch_claimer", "event_id", evt.ID, "call_id", evt.CallID)

	if w.cfg.Tracer != nil {
		var span trace.Span
		ctx, span = w.cfg.Tracer.StartDispatch(ctx, "claim", evt.CallID)
		defer span.End()
	}

	var payload dispatchedPayload
	if err := decodePayload(evt.Payload, &payload); err != nil || payload.DispatchID == "" {
		log.Warn("malformed handoff_dispatched payload")
		if err := w.events.MarkProcessed(ctx, evt.ID); err != nil {
			log.Error("failed to finalize malformed event", "error", err)
		}
		return
	}

	claimed, err := w.dispatches.Claim(ctx, payload.DispatchID)
	if w.cfg.Meters != nil && err == nil {
		w.cfg.Meters.DispatchClaims.Add(ctx, 1)
	}
	if err != nil {
		// A conflict/gone/not-found response is not a transient failure to
		// retry — a dispatch observed twice after a duplicate webhook
		// must finalize here, not be retried forever.
		var ae *apperrors.AppError
		finalize := errors.As(err, &ae)
		w.handleFailure(ctx, evt, err, finalize)
		return
	}

	job, err := w.jobs.Upsert(ctx, launchjob.UpsertInput{
		DispatchID:     claimed.ID,
		CallID:         claimed.CallID,
		TenantID:       claimed.TenantID,
		AgentID:        claimed.AgentID,
		TraceID:        claimed.TraceID,
		Room:           claimed.Room,
		CarrierCallSID: claimed.CarrierCallSid,
		ConnectorURL:   w.cfg.ConnectorURL(claimed.Room),
	})
	if err != nil {
		w.handleFailure(ctx, evt, fmt.Errorf("upsert launch job: %w", err), false)
		return
	}

	if _, err := w.events.Append(ctx, evt.CallID, EventTypeClaimed, map[string]any{
		"dispatch_id": claimed.ID,
		"launch_job_id": job.ID,
	}); err != nil {
		log.Error("failed to append dispatch_claimed", "error", err)
	}
	if _, err := w.events.Append(ctx, evt.CallID, EventTypeBootstrapReady, map[string]any{
		"dispatch_id": claimed.ID,
		"trace_id":    claimed.TraceID,
	}); err != nil {
		log.Error("failed to append agent_session_bootstrap_ready", "error", err)
	}

	if err := w.events.MarkProcessed(ctx, evt.ID); err != nil {
		log.Error("failed to mark handoff_dispatched processed", "error", err)
	}
}

func (w *Worker) handleFailure(ctx context.Context, evt *ent.CallEvent, cause error, finalize bool) {
	log := slog.With("component", "dispatch_claimer", "event_id", evt.ID)
	if !finalize {
		finalize = eventlog.ShouldFinalize(evt.ProcessingAttempts, w.cfg.MaxAttempts)
	}
	if err := w.events.MarkFailed(ctx, evt.ID, cause.Error(), finalize); err != nil {
		log.Error("failed to mark handoff_dispatched failed", "error", err)
	}
}

func decodePayload(raw map[string]any, out *dispatchedPayload) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
