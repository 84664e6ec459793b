package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/codeready-toolchain/voicerelay/ent"
	"github.com/codeready-toolchain/voicerelay/ent/callevent"
	"github.com/codeready-toolchain/voicerelay/pkg/config"
	"github.com/codeready-toolchain/voicerelay/pkg/database"
	"github.com/codeready-toolchain/voicerelay/pkg/toolgateway"
	"github.com/codeready-toolchain/voicerelay/test/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *ent.Client) {
	entClient, sqlDB := util.SetupTestDatabase(t)
	db := database.NewClientFromEnt(entClient, sqlDB)
	gw := toolgateway.New(entClient, toolgateway.NewRateLimiter(20), nil)
	cfg := config.Config{GinMode: "test"}
	return New(db, gw, cfg), entClient
}

func TestHandleSessionEnd_AppendsCallEnded(t *testing.T) {
	s, client := newTestServer(t)
	ctx := context.Background()

	_, err := client.Call.Create().
		SetID("call-1").
		SetTenantID("tenant-1").
		SetAgentID("agent-1").
		SetCarrierCallSid("CA1").
		SetRoom("room-1").
		Save(ctx)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/runtime/sessions/call-1/end",
		strings.NewReader(`{"outcome": "resolved"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)

	events, err := client.CallEvent.Query().
		Where(callevent.TypeEQ("call_ended")).
		All(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "resolved", events[0].Payload["outcome"])
}

func TestHandleSessionEnd_UnknownCall(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/runtime/sessions/missing/end",
		strings.NewReader(`{"outcome": "resolved"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
