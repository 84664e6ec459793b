// Package launcher implements the launcher worker: it drains the
// RuntimeLaunchJob queue and POSTs each to the connector's launch endpoint,
// marking the job succeeded/failed with an attempts count. A failed job is
// claimable again on the next poll; no backoff delay is applied.
package launcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/codeready-toolchain/voicerelay/ent"
	"github.com/codeready-toolchain/voicerelay/pkg/eventlog"
	"github.com/codeready-toolchain/voicerelay/pkg/launchjob"
	"github.com/codeready-toolchain/voicerelay/pkg/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// Event types appended around a launch attempt.
const (
	EventTypeLaunchSucceeded = "agent_session_launch_succeeded"
	EventTypeLaunchFailed    = "agent_session_launch_failed"
)

// Config tunes the worker's poll cadence, batch size, and retry ceiling.
type Config struct {
	BatchSize          int
	PollInterval       time.Duration
	PollIntervalJitter time.Duration
	MaxAttempts        int
	RequestTimeout     time.Duration
	Tracer             *telemetry.Tracer
}

// launchRequest is the body POSTed to the connector to start a call.
type launchRequest struct {
	CallID         string `json:"call_id"`
	TenantID       string `json:"tenant_id"`
	AgentID        string `json:"agent_id"`
	TraceID        string `json:"trace_id"`
	Room           string `json:"room"`
	TwilioCallSID  string `json:"twilio_call_sid"`
	LiveKitURL     string `json:"livekit_url"`
	AgentJoinToken string `json:"agent_join_token"`
}

// Worker drains launch jobs and delivers them to the connector.
type Worker struct {
	id     string
	events *eventlog.Log
	jobs   *launchjob.Store
	http   *http.Client
	cfg    Config

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a launcher Worker.
func New(id string, client *ent.Client, cfg Config) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &Worker{
		id:     id,
		events: eventlog.New(client),
		jobs:   launchjob.New(client),
		http:   &http.Client{Timeout: cfg.RequestTimeout},
		cfg:    cfg,
		stopCh: make(chan struct{}),
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
	log := slog.With("component", "launcher", "worker_id", w.id)
	log.Info("launcher started")

	for {
		select {
		case <-w.stopCh:
			log.Info("launcher shutting down")
			return
		case <-ctx.Done():
			return
		default:
			n, err := w.pollAndProcess(ctx)
			if err != nil {
				log.Error("launcher poll failed", "error", err)
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
	jobs, err := w.jobs.Claim(ctx, w.cfg.BatchSize, w.cfg.MaxAttempts)
	if err != nil {
		return 0, fmt.Errorf("launcher: claim batch: %w", err)
	}
	for _, job := range jobs {
		w.deliver(ctx, job)
	}
	return len(jobs), nil
}

func (w *Worker) deliver(ctx context.Context, job *ent.RuntimeLaunchJob) {
	log := slog.With("component", "launcher", "launch_job_id", job.ID, "call_id", job.CallID)

	if w.cfg.Tracer != nil {
		var span trace.Span
		ctx, span = w.cfg.Tracer.StartDispatch(ctx, "launch", job.CallID)
		defer span.End()
	}

	body, err := json.Marshal(launchRequest{
		CallID:         job.CallID,
		TenantID:       job.TenantID,
		AgentID:        job.AgentID,
		TraceID:        job.TraceID,
		Room:           job.Room,
		TwilioCallSID:  job.CarrierCallSid,
		LiveKitURL:     job.ConnectorURL,
		AgentJoinToken: job.JoinToken,
	})
	if err != nil {
		w.fail(ctx, job, fmt.Errorf("marshal launch request: %w", err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.ConnectorURL, bytes.NewReader(body))
	if err != nil {
		w.fail(ctx, job, fmt.Errorf("build launch request: %w", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		w.fail(ctx, job, fmt.Errorf("deliver launch request: %w", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		w.fail(ctx, job, fmt.Errorf("connector returned status %d", resp.StatusCode))
		return
	}

	if err := w.jobs.MarkSucceeded(ctx, job.ID); err != nil {
		log.Error("failed to mark launch job succeeded", "error", err)
		return
	}
	if _, err := w.events.Append(ctx, job.CallID, EventTypeLaunchSucceeded, map[string]any{
		"launch_job_id": job.ID,
		"dispatch_id":   job.DispatchID,
	}); err != nil {
		log.Error("failed to append agent_session_launch_succeeded", "error", err)
	}
}

func (w *Worker) fail(ctx context.Context, job *ent.RuntimeLaunchJob, cause error) {
	log := slog.With("component", "launcher", "launch_job_id", job.ID)
	willRetry := job.Attempts < w.cfg.MaxAttempts

	if err := w.jobs.MarkFailed(ctx, job.ID, cause.Error()); err != nil {
		log.Error("failed to mark launch job failed", "error", err)
	}
	if _, err := w.events.Append(ctx, job.CallID, EventTypeLaunchFailed, map[string]any{
		"launch_job_id": job.ID,
		"dispatch_id":   job.DispatchID,
		"error":          cause.Error(),
		"will_retry":     willRetry,
	}); err != nil {
		log.Error("failed to append agent_session_launch_failed", "error", err)
	}
}
