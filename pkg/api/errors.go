package api

import (
	"github.com/codeready-toolchain/voicerelay/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

// errorResponse is the JSON shape returned for every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func respondError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	c.JSON(apperrors.HTTPStatus(kind), errorResponse{
		Error: err.Error(),
		Kind:  string(kind),
	})
}
