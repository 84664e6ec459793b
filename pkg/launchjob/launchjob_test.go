package launchjob

import (
	"context"
	"testing"

	"github.com/codeready-toolchain/voicerelay/ent/runtimelaunchjob"
	"github.com/codeready-toolchain/voicerelay/test/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_UpsertCreatesThenRequeues(t *testing.T) {
	client, _ := util.SetupTestDatabase(t)
	store := New(client)
	ctx := context.Background()

	job, err := store.Upsert(ctx, UpsertInput{
		DispatchID: "dispatch-1", CallID: "call-1", TenantID: "tenant-1",
		AgentID: "agent-1", TraceID: "trace-1", Room: "room-1",
		CarrierCallSID: "CA1", ConnectorURL: "https://connector/launch",
	})
	require.NoError(t, err)
	assert.Equal(t, runtimelaunchjob.StatusPending, job.Status)
	assert.Equal(t, 0, job.Attempts)

	claimed, err := store.Claim(ctx, 10, 5)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, runtimelaunchjob.StatusProcessing, claimed[0].Status)
	assert.Equal(t, 1, claimed[0].Attempts)

	require.NoError(t, store.MarkFailed(ctx, job.ID, "connector unreachable"))

	requeued, err := store.Upsert(ctx, UpsertInput{
		DispatchID: "dispatch-1", CallID: "call-1", TenantID: "tenant-1",
		AgentID: "agent-1", TraceID: "trace-1", Room: "room-2",
		CarrierCallSID: "CA1", ConnectorURL: "https://connector/launch",
	})
	require.NoError(t, err)
	assert.Equal(t, job.ID, requeued.ID)
	assert.Equal(t, runtimelaunchjob.StatusPending, requeued.Status)
	assert.Equal(t, 0, requeued.Attempts, "re-queue resets the attempts counter")
}

func TestStore_ClaimSkipsExhaustedAttempts(t *testing.T) {
	client, _ := util.SetupTestDatabase(t)
	store := New(client)
	ctx := context.Background()

	_, err := store.Upsert(ctx, UpsertInput{
		DispatchID: "dispatch-1", CallID: "call-1", TenantID: "tenant-1",
		AgentID: "agent-1", TraceID: "trace-1", Room: "room-1",
		CarrierCallSID: "CA1", ConnectorURL: "https://connector/launch",
	})
	require.NoError(t, err)

	claimed, err := store.Claim(ctx, 10, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	again, err := store.Claim(ctx, 10, 1)
	require.NoError(t, err)
	assert.Empty(t, again, "a job with attempts >= maxAttempts is no longer claimable")
}

func TestStore_MarkSucceededClearsJoinToken(t *testing.T) {
	client, _ := util.SetupTestDatabase(t)
	store := New(client)
	ctx := context.Background()

	job, err := store.Upsert(ctx, UpsertInput{
		DispatchID: "dispatch-1", CallID: "call-1", TenantID: "tenant-1",
		AgentID: "agent-1", TraceID: "trace-1", Room: "room-1",
		CarrierCallSID: "CA1", ConnectorURL: "https://connector/launch",
		JoinToken: "secret-token",
	})
	require.NoError(t, err)

	require.NoError(t, store.MarkSucceeded(ctx, job.ID))

	refreshed, err := client.RuntimeLaunchJob.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, runtimelaunchjob.StatusSucceeded, refreshed.Status)
	assert.Empty(t, refreshed.JoinToken)
	assert.NotNil(t, refreshed.ProcessedAt)
}
