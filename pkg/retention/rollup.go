package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/codeready-toolchain/voicerelay/ent"
	"github.com/codeready-toolchain/voicerelay/ent/call"
	"github.com/codeready-toolchain/voicerelay/ent/dailykpi"
	"github.com/codeready-toolchain/voicerelay/ent/toolexecution"
	"github.com/google/uuid"
)

// RollupConfig tunes the nightly DailyKPI rollup.
type RollupConfig struct {
	// CronExpr is checked once a minute; the rollup runs for each tenant
	// the first time it observes the expression due, e.g. "0 2 * * *"
	// for 02:00 UTC daily.
	CronExpr     string
	CheckInterval time.Duration
}

// RollupWorker computes DailyKPI rows for every tenant with call activity
// on the prior UTC day, once per cron-scheduled tick.
type RollupWorker struct {
	client *ent.Client
	cfg    RollupConfig
	gron   gronx.Gronx

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	lastRun  time.Time
}

// NewRollupWorker builds a RollupWorker.
func NewRollupWorker(client *ent.Client, cfg RollupConfig) *RollupWorker {
	if cfg.CronExpr == "" {
		cfg.CronExpr = "0 2 * * *"
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	return &RollupWorker{
		client: client,
		cfg:    cfg,
		gron:   gronx.New(),
		stopCh: make(chan struct{}),
	}
}

// Start begins the rollup loop in a goroutine.
func (w *RollupWorker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for the in-flight tick.
func (w *RollupWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *RollupWorker) run(ctx context.Context) {
	defer w.wg.Done()
	log := slog.With("component", "kpi_rollup")
	ticker := time.NewTicker(w.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due, err := w.gron.IsDue(w.cfg.CronExpr, now)
			if err != nil {
				log.Error("cron expression evaluation failed", "error", err)
				continue
			}
			if !due || sameMinute(now, w.lastRun) {
				continue
			}
			w.lastRun = now
			if err := w.RunOnce(ctx, now.AddDate(0, 0, -1)); err != nil {
				log.Error("kpi rollup failed", "error", err)
			}
		}
	}
}

func sameMinute(a, b time.Time) bool {
	return a.Truncate(time.Minute).Equal(b.Truncate(time.Minute))
}

// RunOnce computes DailyKPI rows for day (truncated to UTC midnight) across
// every tenant that had call activity that day.
func (w *RollupWorker) RunOnce(ctx context.Context, day time.Time) error {
	dayStart := day.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	tenantIDs, err := w.client.Call.Query().
		Where(call.StartedAtGTE(dayStart), call.StartedAtLT(dayEnd)).
		GroupBy(call.FieldTenantID).
		Strings(ctx)
	if err != nil {
		return fmt.Errorf("retention: list tenants for %s: %w", dayStart, err)
	}

	for _, tenantID := range tenantIDs {
		if err := w.computeTenantDay(ctx, tenantID, dayStart, dayEnd); err != nil {
			return fmt.Errorf("retention: tenant %s day %s: %w", tenantID, dayStart, err)
		}
	}
	return nil
}

func (w *RollupWorker) computeTenantDay(ctx context.Context, tenantID string, dayStart, dayEnd time.Time) error {
	calls, err := w.client.Call.Query().
		Where(call.TenantIDEQ(tenantID), call.StartedAtGTE(dayStart), call.StartedAtLT(dayEnd)).
		All(ctx)
	if err != nil {
		return err
	}

	handled := len(calls)
	handedOff := 0
	var latencySum, latencyCount int
	var callIDs []string
	for _, c := range calls {
		callIDs = append(callIDs, c.ID)
		if c.Outcome != nil && *c.Outcome == "handoff" {
			handedOff++
		}
		if c.EndedAt != nil {
			latencySum += int(c.EndedAt.Sub(c.StartedAt).Milliseconds())
			latencyCount++
		}
	}
	avgLatency := 0
	if latencyCount > 0 {
		avgLatency = latencySum / latencyCount
	}

	errorRate := 0.0
	if len(callIDs) > 0 {
		total, err := w.client.ToolExecution.Query().
			Where(toolexecution.CallIDIn(callIDs...)).
			Count(ctx)
		if err != nil {
			return err
		}
		if total > 0 {
			failed, err := w.client.ToolExecution.Query().
				Where(toolexecution.CallIDIn(callIDs...), toolexecution.StatusNEQ("success")).
				Count(ctx)
			if err != nil {
				return err
			}
			errorRate = float64(failed) / float64(total)
		}
	}

	existingID, err := w.client.DailyKPI.Query().
		Where(dailykpi.TenantIDEQ(tenantID), dailykpi.DayEQ(dayStart)).
		OnlyID(ctx)
	if err == nil {
		return w.client.DailyKPI.UpdateOneID(existingID).
			SetCallsHandled(handled).
			SetCallsHandedOff(handedOff).
			SetAvgTurnLatencyMs(avgLatency).
			SetToolErrorRate(errorRate).
			SetComputedAt(time.Now()).
			Exec(ctx)
	}
	if !ent.IsNotFound(err) {
		return err
	}

	return w.client.DailyKPI.Create().
		SetID(uuid.NewString()).
		SetTenantID(tenantID).
		SetDay(dayStart).
		SetCallsHandled(handled).
		SetCallsHandedOff(handedOff).
		SetAvgTurnLatencyMs(avgLatency).
		SetToolErrorRate(errorRate).
		Exec(ctx)
}
