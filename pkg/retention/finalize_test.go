package retention

import (
	"context"
	"testing"
	"time"

	"github.com/codeready-toolchain/voicerelay/ent"
	"github.com/codeready-toolchain/voicerelay/ent/call"
	"github.com/codeready-toolchain/voicerelay/pkg/eventlog"
	"github.com/codeready-toolchain/voicerelay/test/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCall(t *testing.T, client *ent.Client) *ent.Call {
	c, err := client.Call.Create().
		SetID("call-" + t.Name()).
		SetTenantID("tenant-1").
		SetAgentID("agent-1").
		SetCarrierCallSid("CA-" + t.Name()).
		SetRoom("room-1").
		Save(context.Background())
	require.NoError(t, err)
	return c
}

func TestFinalizeWorker_StampsComputesAndSchedules(t *testing.T) {
	client, _ := util.SetupTestDatabase(t)
	ctx := context.Background()
	c := newTestCall(t, client)

	events := eventlog.New(client)
	_, err := events.Append(ctx, c.ID, EventTypeCallEnded, map[string]any{
		"outcome": "resolved",
	})
	require.NoError(t, err)

	w := NewFinalizeWorker(client, FinalizeConfig{RetentionDays: 30})
	n, err := w.pollAndProcess(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	refreshed, err := client.Call.Get(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, refreshed.EndedAt)
	require.NotNil(t, refreshed.Outcome)
	assert.Equal(t, call.OutcomeResolved, *refreshed.Outcome)

	metric, err := client.CallMetric.Query().Only(ctx)
	require.NoError(t, err)
	assert.Equal(t, c.ID, metric.CallID)

	job, err := client.DeletionJob.Query().Only(ctx)
	require.NoError(t, err)
	assert.Equal(t, c.ID, job.CallID)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 30), job.ScheduledFor, time.Minute)

	finalized, err := events.Claim(ctx, EventTypeCallFinalized, 10)
	require.NoError(t, err)
	assert.Len(t, finalized, 1)
}

func TestFinalizeWorker_RepeatCallEndedExtendsDeletionJob(t *testing.T) {
	client, _ := util.SetupTestDatabase(t)
	ctx := context.Background()
	c := newTestCall(t, client)

	events := eventlog.New(client)
	w := NewFinalizeWorker(client, FinalizeConfig{RetentionDays: 30})

	_, err := events.Append(ctx, c.ID, EventTypeCallEnded, map[string]any{"outcome": "resolved"})
	require.NoError(t, err)
	_, err = w.pollAndProcess(ctx)
	require.NoError(t, err)

	first, err := client.DeletionJob.Query().Only(ctx)
	require.NoError(t, err)

	_, err = events.Append(ctx, c.ID, EventTypeCallEnded, map[string]any{"outcome": "handoff", "handoff_reason": "caller requested a human"})
	require.NoError(t, err)
	_, err = w.pollAndProcess(ctx)
	require.NoError(t, err)

	count, err := client.DeletionJob.Query().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "the call's single deletion job is reused, not duplicated")

	second, err := client.DeletionJob.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	refreshed, err := client.Call.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, call.OutcomeHandoff, *refreshed.Outcome)
	require.NotNil(t, refreshed.HandoffReason)
	assert.Equal(t, "caller requested a human", *refreshed.HandoffReason)
}
