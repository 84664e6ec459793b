package eventlog

import (
	"context"
	"testing"

	"github.com/codeready-toolchain/voicerelay/ent"
	"github.com/codeready-toolchain/voicerelay/test/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCall(t *testing.T, client *ent.Client) *ent.Call {
	call, err := client.Call.Create().
		SetID("call-" + t.Name()).
		SetTenantID("tenant-1").
		SetAgentID("agent-1").
		SetCarrierCallSid("CA-" + t.Name()).
		SetRoom("room-1").
		Save(context.Background())
	require.NoError(t, err)
	return call
}

func TestLog_AppendAndClaim(t *testing.T) {
	client, _ := util.SetupTestDatabase(t)
	log := New(client)
	ctx := context.Background()
	call := newTestCall(t, client)

	_, err := log.Append(ctx, call.ID, "handoff_requested", map[string]any{"room": "room-1"})
	require.NoError(t, err)

	claimed, err := log.Claim(ctx, "handoff_requested", 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, 1, claimed[0].ProcessingAttempts)

	again, err := log.Claim(ctx, "handoff_requested", 10)
	require.NoError(t, err)
	assert.Len(t, again, 1, "unprocessed events remain claimable on every poll")
}

func TestLog_MarkProcessedExcludesFromClaim(t *testing.T) {
	client, _ := util.SetupTestDatabase(t)
	log := New(client)
	ctx := context.Background()
	call := newTestCall(t, client)

	evt, err := log.Append(ctx, call.ID, "handoff_requested", nil)
	require.NoError(t, err)

	require.NoError(t, log.MarkProcessed(ctx, evt.ID))

	claimed, err := log.Claim(ctx, "handoff_requested", 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestLog_MarkFailedFinalize(t *testing.T) {
	client, _ := util.SetupTestDatabase(t)
	log := New(client)
	ctx := context.Background()
	call := newTestCall(t, client)

	evt, err := log.Append(ctx, call.ID, "handoff_requested", nil)
	require.NoError(t, err)

	require.NoError(t, log.MarkFailed(ctx, evt.ID, "boom", false))
	claimed, err := log.Claim(ctx, "handoff_requested", 10)
	require.NoError(t, err)
	assert.Len(t, claimed, 1, "non-finalized failure stays claimable")

	require.NoError(t, log.MarkFailed(ctx, claimed[0].ID, "boom again", true))
	claimed, err = log.Claim(ctx, "handoff_requested", 10)
	require.NoError(t, err)
	assert.Empty(t, claimed, "finalized failure is no longer claimable")
}

func TestShouldFinalize(t *testing.T) {
	assert.False(t, ShouldFinalize(2, 5))
	assert.True(t, ShouldFinalize(5, 5))
	assert.True(t, ShouldFinalize(6, 5))
	assert.True(t, ShouldFinalize(MaxAttemptsDefault, 0), "zero maxAttempts falls back to the default ceiling")
}
