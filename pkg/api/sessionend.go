package api

import (
	"net/http"

	"github.com/codeready-toolchain/voicerelay/ent"
	"github.com/codeready-toolchain/voicerelay/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

type sessionEndRequest struct {
	Outcome       string `json:"outcome"`
	HandoffReason string `json:"handoff_reason"`
}

// handleSessionEnd is called by the connector once a call's media stream
// stops. It only appends call_ended; the retention finalize worker stamps
// the call, computes its CallMetric, and schedules its DeletionJob.
func (s *Server) handleSessionEnd(c *gin.Context) {
	callID := c.Param("callId")

	var req sessionEndRequest
	_ = c.ShouldBindJSON(&req)

	ctx := c.Request.Context()
	if _, err := s.db.Call.Get(ctx, callID); err != nil {
		if ent.IsNotFound(err) {
			respondError(c, apperrors.New(apperrors.KindNotFound, "session unknown"))
			return
		}
		respondError(c, apperrors.Wrap(apperrors.KindInternal, "load call", err))
		return
	}

	if _, err := s.events.Append(ctx, callID, "call_ended", map[string]any{
		"outcome":        req.Outcome,
		"handoff_reason": req.HandoffReason,
	}); err != nil {
		respondError(c, apperrors.Wrap(apperrors.KindInternal, "append call_ended", err))
		return
	}

	c.Status(http.StatusNoContent)
}
