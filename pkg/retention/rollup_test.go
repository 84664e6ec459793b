package retention

import (
	"context"
	"testing"
	"time"

	"github.com/codeready-toolchain/voicerelay/ent"
	"github.com/codeready-toolchain/voicerelay/ent/call"
	"github.com/codeready-toolchain/voicerelay/test/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEndedCall(t *testing.T, client *ent.Client, started time.Time, outcome string) *ent.Call {
	ctx := context.Background()
	ended := started.Add(90 * time.Second)
	builder := client.Call.Create().
		SetID("call-" + t.Name() + "-" + outcome).
		SetTenantID("tenant-1").
		SetAgentID("agent-1").
		SetCarrierCallSid("CA-" + t.Name() + "-" + outcome).
		SetRoom("room-1").
		SetStartedAt(started).
		SetEndedAt(ended)
	if outcome != "" {
		builder = builder.SetOutcome(call.Outcome(outcome))
	}
	c, err := builder.Save(ctx)
	require.NoError(t, err)
	return c
}

func TestRollupWorker_RunOnceComputesDailyKPI(t *testing.T) {
	client, _ := util.SetupTestDatabase(t)
	ctx := context.Background()
	day := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	newEndedCall(t, client, day.Add(time.Hour), "resolved")
	newEndedCall(t, client, day.Add(2*time.Hour), "handoff")

	w := NewRollupWorker(client, RollupConfig{})
	require.NoError(t, w.RunOnce(ctx, day))

	kpi, err := client.DailyKPI.Query().Only(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", kpi.TenantID)
	assert.Equal(t, 2, kpi.CallsHandled)
	assert.Equal(t, 1, kpi.CallsHandedOff)
	assert.Equal(t, 90000, kpi.AvgTurnLatencyMs)
}

func TestRollupWorker_RunOnceIsIdempotent(t *testing.T) {
	client, _ := util.SetupTestDatabase(t)
	ctx := context.Background()
	day := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	newEndedCall(t, client, day.Add(time.Hour), "resolved")

	w := NewRollupWorker(client, RollupConfig{})
	require.NoError(t, w.RunOnce(ctx, day))
	require.NoError(t, w.RunOnce(ctx, day))

	count, err := client.DailyKPI.Query().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "re-running the same day replaces, not duplicates")
}
