package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/codeready-toolchain/voicerelay/ent"
	"github.com/codeready-toolchain/voicerelay/ent/runtimedispatch"
	"github.com/codeready-toolchain/voicerelay/pkg/apperrors"
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

func TestStore_UpsertCreatesThenReMints(t *testing.T) {
	client, _ := util.SetupTestDatabase(t)
	store := New(client)
	ctx := context.Background()
	call := newTestCall(t, client)

	first, err := store.Upsert(ctx, UpsertInput{
		CallID: call.ID, TraceID: "trace-1", TenantID: "tenant-1", AgentID: "agent-1",
		CarrierCallSID: call.CarrierCallSid, Room: "room-1", JoinToken: "token-a",
	})
	require.NoError(t, err)
	assert.Equal(t, runtimedispatch.StatusPending, first.Status)

	claimed, err := store.Claim(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, runtimedispatch.StatusClaimed, claimed.Status)
	assert.Empty(t, claimed.JoinToken)

	second, err := store.Upsert(ctx, UpsertInput{
		CallID: call.ID, TraceID: "trace-1", TenantID: "tenant-1", AgentID: "agent-1",
		CarrierCallSID: call.CarrierCallSid, Room: "room-2", JoinToken: "token-b",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "re-emission of the same (call, trace) reuses the row")
	assert.Equal(t, runtimedispatch.StatusPending, second.Status, "re-mint resets status to pending")
	assert.Equal(t, "token-b", second.JoinToken)
}

func TestStore_ClaimTwiceConflicts(t *testing.T) {
	client, _ := util.SetupTestDatabase(t)
	store := New(client)
	ctx := context.Background()
	call := newTestCall(t, client)

	d, err := store.Upsert(ctx, UpsertInput{
		CallID: call.ID, TraceID: "trace-1", TenantID: "tenant-1", AgentID: "agent-1",
		CarrierCallSID: call.CarrierCallSid, Room: "room-1", JoinToken: "token-a",
	})
	require.NoError(t, err)

	_, err = store.Claim(ctx, d.ID)
	require.NoError(t, err)

	_, err = store.Claim(ctx, d.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestStore_ClaimExpired(t *testing.T) {
	client, _ := util.SetupTestDatabase(t)
	store := New(client)
	ctx := context.Background()
	call := newTestCall(t, client)

	d, err := store.Upsert(ctx, UpsertInput{
		CallID: call.ID, TraceID: "trace-1", TenantID: "tenant-1", AgentID: "agent-1",
		CarrierCallSID: call.CarrierCallSid, Room: "room-1", JoinToken: "token-a",
		TTL: -time.Minute,
	})
	require.NoError(t, err)

	_, err = store.Claim(ctx, d.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindGone, apperrors.KindOf(err))
}

func TestStore_MarkExpired(t *testing.T) {
	client, _ := util.SetupTestDatabase(t)
	store := New(client)
	ctx := context.Background()
	call := newTestCall(t, client)

	d, err := store.Upsert(ctx, UpsertInput{
		CallID: call.ID, TraceID: "trace-1", TenantID: "tenant-1", AgentID: "agent-1",
		CarrierCallSID: call.CarrierCallSid, Room: "room-1", JoinToken: "token-a",
		TTL: -time.Minute,
	})
	require.NoError(t, err)

	n, err := store.MarkExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	refreshed, err := client.RuntimeDispatch.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, runtimedispatch.StatusExpired, refreshed.Status)
	assert.Empty(t, refreshed.JoinToken)
}
