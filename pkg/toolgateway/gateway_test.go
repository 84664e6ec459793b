package toolgateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/codeready-toolchain/voicerelay/ent"
	"github.com/codeready-toolchain/voicerelay/ent/callevent"
	"github.com/codeready-toolchain/voicerelay/ent/toolexecution"
	"github.com/codeready-toolchain/voicerelay/pkg/apperrors"
	"github.com/codeready-toolchain/voicerelay/test/util"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTool(t *testing.T, client *ent.Client, endpointURL string, maxRetries int) *ent.Tool {
	ctx := context.Background()
	tool, err := client.Tool.Create().
		SetID(uuid.NewString()).
		SetTenantID("tenant-1").
		SetName("lookup_order").
		SetInputSchema(map[string]any{
			"type":     "object",
			"required": []any{"order_id"},
			"properties": map[string]any{
				"order_id": map[string]any{"type": "string"},
			},
		}).
		Save(ctx)
	require.NoError(t, err)

	_, err = client.ToolEndpoint.Create().
		SetID(uuid.NewString()).
		SetToolID(tool.ID).
		SetURLTemplate(endpointURL).
		SetMaxRetries(maxRetries).
		SetTimeoutMs(2000).
		Save(ctx)
	require.NoError(t, err)

	return tool
}

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

func TestGateway_ExecuteSucceeds(t *testing.T) {
	client, _ := util.SetupTestDatabase(t)
	ctx := context.Background()
	call := newTestCall(t, client)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "shipped"}`))
	}))
	defer server.Close()

	newTestTool(t, client, server.URL, 2)

	gw := New(client, NewRateLimiter(20), nil)
	result, err := gw.Execute(ctx, ExecuteInput{
		CallID:   call.ID,
		TenantID: "tenant-1",
		ToolName: "lookup_order",
		Args:     map[string]any{"order_id": "o-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "shipped", result.Response["status"])
	assert.Equal(t, toolexecution.StatusSuccess, result.Execution.Status)

	count, err := client.ToolExecution.Query().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGateway_RetriesTransientFailureThenSucceeds(t *testing.T) {
	client, _ := util.SetupTestDatabase(t)
	ctx := context.Background()
	call := newTestCall(t, client)

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status": "ok"}`))
	}))
	defer server.Close()

	newTestTool(t, client, server.URL, 2)

	gw := New(client, NewRateLimiter(20), nil)
	result, err := gw.Execute(ctx, ExecuteInput{
		CallID:   call.ID,
		TenantID: "tenant-1",
		ToolName: "lookup_order",
		Args:     map[string]any{"order_id": "o-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Response["status"])
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "one transient failure is retried")
}

func TestGateway_NonRetryableStatusFailsImmediately(t *testing.T) {
	client, _ := util.SetupTestDatabase(t)
	ctx := context.Background()
	call := newTestCall(t, client)

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	newTestTool(t, client, server.URL, 2)

	gw := New(client, NewRateLimiter(20), nil)
	_, err := gw.Execute(ctx, ExecuteInput{
		CallID:   call.ID,
		TenantID: "tenant-1",
		ToolName: "lookup_order",
		Args:     map[string]any{"order_id": "o-1"},
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInvalidPayload, apperrors.KindOf(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "non-retryable status is not retried")

	execution, err := client.ToolExecution.Query().Only(ctx)
	require.NoError(t, err)
	assert.Equal(t, toolexecution.StatusError, execution.Status)
	require.NotNil(t, execution.ErrorCode)
	assert.Equal(t, string(apperrors.KindInvalidPayload), *execution.ErrorCode)
}

func TestGateway_SchemaValidationRejectsBeforeDispatch(t *testing.T) {
	client, _ := util.SetupTestDatabase(t)
	ctx := context.Background()
	call := newTestCall(t, client)

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	newTestTool(t, client, server.URL, 2)

	gw := New(client, NewRateLimiter(20), nil)
	_, err := gw.Execute(ctx, ExecuteInput{
		CallID:   call.ID,
		TenantID: "tenant-1",
		ToolName: "lookup_order",
		Args:     map[string]any{},
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindSchemaValidation, apperrors.KindOf(err))
	assert.Zero(t, atomic.LoadInt32(&calls), "invalid args never reach the endpoint")

	execution, err := client.ToolExecution.Query().Only(ctx)
	require.NoError(t, err)
	assert.Equal(t, toolexecution.StatusError, execution.Status)
	require.NotNil(t, execution.ErrorCode)
	assert.Equal(t, string(apperrors.KindSchemaValidation), *execution.ErrorCode)

	events, err := client.CallEvent.Query().
		Where(callevent.TypeEQ("tool_execution_failed")).
		All(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(apperrors.KindSchemaValidation), events[0].Payload["error_code"])
}

func TestGateway_RateLimitedCallNeverDispatches(t *testing.T) {
	client, _ := util.SetupTestDatabase(t)
	ctx := context.Background()
	call := newTestCall(t, client)

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	newTestTool(t, client, server.URL, 0)

	limiter := NewRateLimiter(1)
	limiter.Allow(call.ID) // consume the single token before the real attempt

	gw := New(client, limiter, nil)
	_, err := gw.Execute(ctx, ExecuteInput{
		CallID:   call.ID,
		TenantID: "tenant-1",
		ToolName: "lookup_order",
		Args:     map[string]any{"order_id": "o-1"},
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindRateLimited, apperrors.KindOf(err))
	assert.Zero(t, atomic.LoadInt32(&calls))
}
