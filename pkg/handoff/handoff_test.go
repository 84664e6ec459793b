package handoff

import (
	"context"
	"testing"

	"github.com/codeready-toolchain/voicerelay/ent"
	"github.com/codeready-toolchain/voicerelay/ent/callevent"
	"github.com/codeready-toolchain/voicerelay/pkg/eventlog"
	"github.com/codeready-toolchain/voicerelay/pkg/roomgateway"
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

func TestWorker_DispatchesValidRequest(t *testing.T) {
	client, _ := util.SetupTestDatabase(t)
	ctx := context.Background()
	call := newTestCall(t, client)

	w := New("handoff-test", client, roomgateway.NewMock(""), Config{})
	events := eventlog.New(client)

	_, err := events.Append(ctx, call.ID, EventTypeRequested, map[string]any{
		"trace_id": "trace-1", "tenant_id": "tenant-1", "agent_id": "agent-1",
		"carrier_call_sid": call.CarrierCallSid, "room": "room-1", "from": "+15551234", "to": "+15555678",
	})
	require.NoError(t, err)

	n, err := w.pollAndProcess(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	dispatched, err := client.CallEvent.Query().
		Where(callevent.TypeEQ(EventTypeDispatched)).
		All(ctx)
	require.NoError(t, err)
	require.Len(t, dispatched, 1)
	assert.Equal(t, "trace-1", dispatched[0].Payload["trace_id"])
}

func TestWorker_InvalidPayloadFinalizesWithoutDispatch(t *testing.T) {
	client, _ := util.SetupTestDatabase(t)
	ctx := context.Background()
	call := newTestCall(t, client)

	w := New("handoff-test", client, roomgateway.NewMock(""), Config{})
	events := eventlog.New(client)

	evt, err := events.Append(ctx, call.ID, EventTypeRequested, map[string]any{
		"trace_id": "trace-1",
	})
	require.NoError(t, err)

	n, err := w.pollAndProcess(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	refreshed, err := client.CallEvent.Get(ctx, evt.ID)
	require.NoError(t, err)
	assert.NotNil(t, refreshed.ProcessedAt, "invalid payload is finalized, not retried")

	dispatched, err := client.CallEvent.Query().
		Where(callevent.TypeEQ(EventTypeDispatched)).
		All(ctx)
	require.NoError(t, err)
	assert.Empty(t, dispatched)

	invalid, err := client.CallEvent.Query().
		Where(callevent.TypeEQ(EventTypeInvalidPayload)).
		All(ctx)
	require.NoError(t, err)
	assert.Len(t, invalid, 1)
}
