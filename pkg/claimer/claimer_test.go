package claimer

import (
	"context"
	"testing"

	"github.com/codeready-toolchain/voicerelay/ent"
	"github.com/codeready-toolchain/voicerelay/pkg/dispatch"
	"github.com/codeready-toolchain/voicerelay/pkg/eventlog"
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

func TestWorker_ClaimsDispatchAndEnqueuesLaunch(t *testing.T) {
	client, _ := util.SetupTestDatabase(t)
	ctx := context.Background()
	call := newTestCall(t, client)

	dispatches := dispatch.New(client)
	d, err := dispatches.Upsert(ctx, dispatch.UpsertInput{
		CallID: call.ID, TraceID: "trace-1", TenantID: "tenant-1", AgentID: "agent-1",
		CarrierCallSID: call.CarrierCallSid, Room: "room-1", JoinToken: "token-a",
	})
	require.NoError(t, err)

	events := eventlog.New(client)
	_, err = events.Append(ctx, call.ID, EventTypeDispatched, map[string]any{"dispatch_id": d.ID})
	require.NoError(t, err)

	w := New("claimer-test", client, Config{
		ConnectorURL: func(room string) string { return "https://connector/launch" },
	})

	n, err := w.pollAndProcess(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, err := client.RuntimeLaunchJob.Query().Only(ctx)
	require.NoError(t, err)
	assert.Equal(t, d.ID, job.DispatchID)

	claimedEvents, err := events.Claim(ctx, EventTypeClaimed, 10)
	require.NoError(t, err)
	assert.Len(t, claimedEvents, 1)
}

func TestWorker_MalformedPayloadFinalizesWithoutLaunchJob(t *testing.T) {
	client, _ := util.SetupTestDatabase(t)
	ctx := context.Background()
	call := newTestCall(t, client)

	events := eventlog.New(client)
	evt, err := events.Append(ctx, call.ID, EventTypeDispatched, map[string]any{})
	require.NoError(t, err)

	w := New("claimer-test", client, Config{})
	n, err := w.pollAndProcess(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	refreshed, err := client.CallEvent.Get(ctx, evt.ID)
	require.NoError(t, err)
	assert.NotNil(t, refreshed.ProcessedAt)

	count, err := client.RuntimeLaunchJob.Query().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
