package api

import (
	"net/http"
	"strings"

	"github.com/codeready-toolchain/voicerelay/ent"
	"github.com/codeready-toolchain/voicerelay/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

type claimResponse struct {
	DispatchID string `json:"dispatch_id"`
	CallID     string `json:"call_id"`
	Room       string `json:"room"`
	Status     string `json:"status"`
}

// handleClaimDispatch is the internal endpoint that atomically redeems a
// pending RuntimeDispatch over HTTP. It requires a short-TTL service
// credential scoped to the dispatch's tenant. The claimer worker does not
// call it; it claims through dispatch.Store directly.
func (s *Server) handleClaimDispatch(c *gin.Context) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if token == "" {
		respondError(c, ErrInvalidServiceToken)
		return
	}
	tenantID, err := s.auth.Verify(token)
	if err != nil {
		respondError(c, err)
		return
	}

	dispatchID := c.Param("id")
	d, err := s.db.RuntimeDispatch.Get(c.Request.Context(), dispatchID)
	if err != nil {
		if ent.IsNotFound(err) {
			err = apperrors.New(apperrors.KindNotFound, "dispatch not found")
		}
		respondError(c, err)
		return
	}
	if d.TenantID != tenantID {
		respondError(c, apperrors.New(apperrors.KindForbidden, "service credential is not scoped to this dispatch's tenant"))
		return
	}

	claimed, err := s.dispatch.Claim(c.Request.Context(), dispatchID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, claimResponse{
		DispatchID: claimed.ID,
		CallID:     claimed.CallID,
		Room:       claimed.Room,
		Status:     string(claimed.Status),
	})
}
