package launcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/codeready-toolchain/voicerelay/ent/callevent"
	"github.com/codeready-toolchain/voicerelay/ent/runtimelaunchjob"
	"github.com/codeready-toolchain/voicerelay/pkg/launchjob"
	"github.com/codeready-toolchain/voicerelay/test/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_DeliversAndMarksSucceeded(t *testing.T) {
	client, _ := util.SetupTestDatabase(t)
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	jobs := launchjob.New(client)
	job, err := jobs.Upsert(ctx, launchjob.UpsertInput{
		DispatchID: "dispatch-1", CallID: "call-1", TenantID: "tenant-1", AgentID: "agent-1",
		TraceID: "trace-1", Room: "room-1", CarrierCallSID: "CA1", ConnectorURL: server.URL,
	})
	require.NoError(t, err)

	w := New("launcher-test", client, Config{})
	n, err := w.pollAndProcess(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	refreshed, err := client.RuntimeLaunchJob.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, runtimelaunchjob.StatusSucceeded, refreshed.Status)

	succeeded, err := client.CallEvent.Query().
		Where(callevent.TypeEQ(EventTypeLaunchSucceeded)).
		All(ctx)
	require.NoError(t, err)
	assert.Len(t, succeeded, 1)
}

func TestWorker_NonOKResponseMarksFailed(t *testing.T) {
	client, _ := util.SetupTestDatabase(t)
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	jobs := launchjob.New(client)
	job, err := jobs.Upsert(ctx, launchjob.UpsertInput{
		DispatchID: "dispatch-1", CallID: "call-1", TenantID: "tenant-1", AgentID: "agent-1",
		TraceID: "trace-1", Room: "room-1", CarrierCallSID: "CA1", ConnectorURL: server.URL,
	})
	require.NoError(t, err)

	w := New("launcher-test", client, Config{})
	n, err := w.pollAndProcess(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	refreshed, err := client.RuntimeLaunchJob.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, runtimelaunchjob.StatusFailed, refreshed.Status)
	assert.NotEmpty(t, refreshed.LastError)

	failed, err := client.CallEvent.Query().
		Where(callevent.TypeEQ(EventTypeLaunchFailed)).
		All(ctx)
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}
