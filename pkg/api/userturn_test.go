package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/codeready-toolchain/voicerelay/ent"
	"github.com/codeready-toolchain/voicerelay/ent/utterance"
	"github.com/codeready-toolchain/voicerelay/pkg/apperrors"
	"github.com/codeready-toolchain/voicerelay/pkg/config"
	"github.com/codeready-toolchain/voicerelay/pkg/database"
	"github.com/codeready-toolchain/voicerelay/pkg/toolgateway"
	"github.com/codeready-toolchain/voicerelay/test/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockModeServer(t *testing.T) (*Server, *ent.Client) {
	entClient, sqlDB := util.SetupTestDatabase(t)
	db := database.NewClientFromEnt(entClient, sqlDB)
	gw := toolgateway.New(entClient, toolgateway.NewRateLimiter(20), nil)
	cfg := config.Config{
		GinMode:  "test",
		MockMode: true,
		Tool:     config.ToolConfig{CommandPrefix: toolgateway.DefaultPrefix},
	}
	return New(db, gw, cfg), entClient
}

func newUserTurnCall(t *testing.T, client *ent.Client) *ent.Call {
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

func postUserTurn(s *Server, callID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/runtime/sessions/"+callID+"/user-turn", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func TestHandleUserTurn_ToolSyntaxErrorReturnsSpanishHint(t *testing.T) {
	s, client := newMockModeServer(t)
	call := newUserTurnCall(t, client)

	w := postUserTurn(s, call.ID, `{"text": "/tool lookup not-json"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, string(apperrors.KindInvalidPayload), body.Kind)
	assert.Contains(t, body.Error, "No entendí el comando de herramienta")
	assert.Contains(t, body.Error, toolgateway.DefaultPrefix)
}

func TestHandleUserTurn_MockModeRecordsCallerAndAgentUtterances(t *testing.T) {
	s, client := newMockModeServer(t)
	call := newUserTurnCall(t, client)

	w := postUserTurn(s, call.ID, `{"text": "hello", "confidence": 0.88}`)
	assert.Equal(t, http.StatusOK, w.Code)

	rows, err := client.Utterance.Query().
		Where(utterance.CallIDEQ(call.ID)).
		Order(ent.Asc(utterance.FieldStartMs)).
		All(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	caller, agent := rows[0], rows[1]
	assert.Equal(t, utterance.SpeakerCaller, caller.Speaker)
	assert.Equal(t, 0, caller.StartMs)
	assert.Equal(t, utterance.SpeakerAgent, agent.Speaker)
	assert.Equal(t, caller.EndMs+120, agent.StartMs, "agent reply starts 120ms after the caller utterance ends")
}
