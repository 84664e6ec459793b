// Package handoff implements the handoff worker: it drains
// "handoff_requested" events, provisions a media room and join token, and
// writes the resulting RuntimeDispatch plus a "handoff_dispatched" event.
package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/codeready-toolchain/voicerelay/ent"
	"github.com/codeready-toolchain/voicerelay/pkg/dispatch"
	"github.com/codeready-toolchain/voicerelay/pkg/eventlog"
	"github.com/codeready-toolchain/voicerelay/pkg/roomgateway"
	"github.com/codeready-toolchain/voicerelay/pkg/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// EventTypeRequested is the backlog type this worker consumes.
const EventTypeRequested = "handoff_requested"

// EventTypeDispatched is the event appended on success.
const EventTypeDispatched = "handoff_dispatched"

// EventTypeInvalidPayload is appended when a request fails shape validation.
const EventTypeInvalidPayload = "handoff_invalid_payload"

// EventTypeFailed is appended on any other failure.
const EventTypeFailed = "handoff_failed"

// Config tunes the worker's poll cadence and retry ceiling.
type Config struct {
	BatchSize          int
	PollInterval       time.Duration
	PollIntervalJitter time.Duration
	MaxAttempts        int
	Tracer             *telemetry.Tracer
}

// requestPayload is the required shape of a handoff_requested event.
type requestPayload struct {
	TraceID        string `json:"trace_id"`
	TenantID       string `json:"tenant_id"`
	AgentID        string `json:"agent_id"`
	CarrierCallSID string `json:"carrier_call_sid"`
	Room           string `json:"room"`
	From           string `json:"from"`
	To             string `json:"to"`
}

func (p requestPayload) validate() error {
	switch {
	case p.TraceID == "":
		return fmt.Errorf("missing trace_id")
	case p.TenantID == "":
		return fmt.Errorf("missing tenant_id")
	case p.AgentID == "":
		return fmt.Errorf("missing agent_id")
	case p.CarrierCallSID == "":
		return fmt.Errorf("missing carrier_call_sid")
	case p.Room == "":
		return fmt.Errorf("missing room")
	case p.From == "":
		return fmt.Errorf("missing from")
	case p.To == "":
		return fmt.Errorf("missing to")
	}
	return nil
}

// Worker polls the event log for handoff_requested events and dispatches
// each one.
type Worker struct {
	id       string
	events   *eventlog.Log
	dispatch *dispatch.Store
	rooms    roomgateway.Gateway
	cfg      Config

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a handoff Worker.
func New(id string, client *ent.Client, rooms roomgateway.Gateway, cfg Config) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = eventlog.MaxAttemptsDefault
	}
	return &Worker{
		id:       id,
		events:   eventlog.New(client),
		dispatch: dispatch.New(client),
		rooms:    rooms,
		cfg:      cfg,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the worker loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for the in-flight batch to
// finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	log := slog.With("component", "handoff_worker", "worker_id", w.id)
	log.Info("handoff worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("handoff worker shutting down")
			return
		case <-ctx.Done():
			return
		default:
			n, err := w.pollAndProcess(ctx)
			if err != nil {
				log.Error("handoff poll failed", "error", err)
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

// pollAndProcess claims a batch of handoff_requested events and dispatches
// each, returning the number claimed.
func (w *Worker) pollAndProcess(ctx context.Context) (int, error) {
	events, err := w.events.Claim(ctx, EventTypeRequested, w.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("handoff: claim batch: %w", err)
	}

	for _, evt := range events {
		w.processOne(ctx, evt)
	}
	return len(events), nil
}

func (w *Worker) processOne(ctx context.Context, evt *ent.CallEvent) {
	log := slog.With("component", "handoff_worker", "event_id", evt.ID, "call_id", evt.CallID)

	if w.cfg.Tracer != nil {
		var span trace.Span
		ctx, span = w.cfg.Tracer.StartDispatch(ctx, "handoff", evt.CallID)
		defer span.End()
	}

	var payload requestPayload
	if err := decodePayload(evt.Payload, &payload); err != nil || payload.validate() != nil {
		msg := "malformed handoff_requested payload"
		if err == nil {
			msg = payload.validate().Error()
		}
		log.Warn("invalid handoff payload", "error", msg)
		if _, appendErr := w.events.Append(ctx, evt.CallID, EventTypeInvalidPayload, map[string]any{
			"source_event_id": evt.ID,
			"reason":          msg,
		}); appendErr != nil {
			log.Error("failed to append handoff_invalid_payload", "error", appendErr)
		}
		if err := w.events.MarkProcessed(ctx, evt.ID); err != nil {
			log.Error("failed to finalize invalid event", "error", err)
		}
		return
	}

	if err := w.dispatchOne(ctx, evt, payload); err != nil {
		w.handleFailure(ctx, evt, err)
		return
	}

	if err := w.events.MarkProcessed(ctx, evt.ID); err != nil {
		log.Error("failed to mark handoff_requested processed", "error", err)
	}
}

func (w *Worker) dispatchOne(ctx context.Context, evt *ent.CallEvent, payload requestPayload) error {
	if err := w.rooms.EnsureRoom(ctx, payload.Room); err != nil {
		return fmt.Errorf("ensure room: %w", err)
	}

	joinToken, err := w.rooms.MintJoinToken(roomgateway.TokenInput{
		AgentID:        payload.AgentID,
		Room:           payload.Room,
		TenantID:       payload.TenantID,
		CarrierCallSID: payload.CarrierCallSID,
		TraceID:        payload.TraceID,
		TTL:            dispatch.DefaultTTL,
	})
	if err != nil {
		return fmt.Errorf("mint join token: %w", err)
	}

	d, err := w.dispatch.Upsert(ctx, dispatch.UpsertInput{
		CallID:         evt.CallID,
		TraceID:        payload.TraceID,
		TenantID:       payload.TenantID,
		AgentID:        payload.AgentID,
		CarrierCallSID: payload.CarrierCallSID,
		Room:           payload.Room,
		JoinToken:      joinToken,
		TTL:            dispatch.DefaultTTL,
	})
	if err != nil {
		return fmt.Errorf("upsert dispatch: %w", err)
	}

	// The raw join-token never appears in any event payload, only the
	// dispatch id.
	_, err = w.events.Append(ctx, evt.CallID, EventTypeDispatched, map[string]any{
		"dispatch_id":        d.ID,
		"dispatch_expires_at": d.ExpiresAt.Format(time.RFC3339Nano),
		"trace_id":            payload.TraceID,
		"tenant_id":           payload.TenantID,
		"agent_id":            payload.AgentID,
		"room":                payload.Room,
		"livekit_url":         w.rooms.URL(),
	})
	if err != nil {
		return fmt.Errorf("append handoff_dispatched: %w", err)
	}
	return nil
}

func (w *Worker) handleFailure(ctx context.Context, evt *ent.CallEvent, cause error) {
	log := slog.With("component", "handoff_worker", "event_id", evt.ID)
	finalize := eventlog.ShouldFinalize(evt.ProcessingAttempts, w.cfg.MaxAttempts)

	_, appendErr := w.events.Append(ctx, evt.CallID, EventTypeFailed, map[string]any{
		"source_event_id": evt.ID,
		"error":            cause.Error(),
		"attempts":         evt.ProcessingAttempts,
		"will_retry":       !finalize,
	})
	if appendErr != nil {
		log.Error("failed to append handoff_failed", "error", appendErr)
	}

	if err := w.events.MarkFailed(ctx, evt.ID, cause.Error(), finalize); err != nil {
		log.Error("failed to mark handoff_requested failed", "error", err)
	}
}

func decodePayload(raw map[string]any, out *requestPayload) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
