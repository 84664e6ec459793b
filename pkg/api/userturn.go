package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/codeready-toolchain/voicerelay/ent"
	"github.com/codeready-toolchain/voicerelay/ent/agentversion"
	"github.com/codeready-toolchain/voicerelay/ent/tool"
	"github.com/codeready-toolchain/voicerelay/pkg/apperrors"
	"github.com/codeready-toolchain/voicerelay/pkg/toolgateway"
	"github.com/gin-gonic/gin"
)

type userTurnRequest struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type userTurnResponse struct {
	CallID          string `json:"call_id"`
	TraceID         string `json:"trace_id"`
	Mode            string `json:"mode"`
	ResponseText    string `json:"response_text"`
	ToolExecutionID string `json:"tool_execution,omitempty"`
}

// handleUserTurn runs one caller utterance through the tool command layer:
// an explicit "/tool name {...}" command, an LLM tool choice, or a plain
// assistant reply.
func (s *Server) handleUserTurn(c *gin.Context) {
	callID := c.Param("callId")

	var req userTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Text) < 1 || len(req.Text) > 4000 {
		respondError(c, apperrors.New(apperrors.KindInvalidPayload, "text must be 1-4000 characters"))
		return
	}

	ctx := c.Request.Context()
	call, err := s.db.Call.Get(ctx, callID)
	if err != nil {
		if ent.IsNotFound(err) {
			respondError(c, apperrors.New(apperrors.KindNotFound, "session unknown"))
			return
		}
		respondError(c, apperrors.Wrap(apperrors.KindInternal, "load call", err))
		return
	}

	version, err := s.db.AgentVersion.Query().
		Where(agentversion.AgentIDEQ(call.AgentID), agentversion.PublishedEQ(true)).
		Order(ent.Desc(agentversion.FieldVersion)).
		First(ctx)
	if err != nil && !ent.IsNotFound(err) {
		respondError(c, apperrors.Wrap(apperrors.KindInternal, "load agent version", err))
		return
	}
	versionID := ""
	if version != nil {
		versionID = version.ID
	}

	traceID := c.GetHeader("X-Trace-Id")

	callerEndMS, err := s.utterances.RecordCaller(ctx, call.ID, req.Text, req.Confidence)
	if err != nil {
		respondError(c, apperrors.Wrap(apperrors.KindInternal, "record caller utterance", err))
		return
	}

	cmd, isExplicit, parseErr := toolgateway.ParseExplicitCommand(s.cfg.Tool.CommandPrefix, req.Text)
	if isExplicit && parseErr != nil {
		hint := fmt.Sprintf("No entendí el comando de herramienta. Usa %s <nombre> {\"clave\":\"valor\"}.", s.cfg.Tool.CommandPrefix)
		respondError(c, apperrors.Wrap(apperrors.KindInvalidPayload, hint, parseErr))
		return
	}

	var (
		mode            string
		responseText    string
		toolExecutionID string
	)

	switch {
	case isExplicit:
		mode = "tool_call"
		responseText, toolExecutionID = s.runTool(ctx, call.ID, call.TenantID, versionID, cmd.ToolName, cmd.Args)

	case s.llm != nil && versionID != "":
		catalog, err := s.db.Tool.Query().
			Where(tool.TenantIDEQ(call.TenantID)).
			All(ctx)
		if err != nil {
			respondError(c, apperrors.Wrap(apperrors.KindInternal, "load tool catalog", err))
			return
		}

		choice, text, err := toolgateway.ChooseTool(ctx, s.llm, toolgateway.LLMChoiceConfig{
			Model:        s.cfg.Tool.LLMToolChoiceModel,
			SystemPrompt: s.cfg.Tool.LLMToolChoiceSystem,
		}, catalog, req.Text)
		if err != nil {
			respondError(c, apperrors.Wrap(apperrors.KindInternal, "llm tool choice", err))
			return
		}
		if choice != nil {
			mode = "tool_call"
			responseText, toolExecutionID = s.runTool(ctx, call.ID, call.TenantID, versionID, choice.ToolName, choice.Args)
		} else {
			mode = "response"
			responseText = text
		}

	case s.cfg.MockMode:
		mode = "response"
		responseText = "(mock) I heard you."

	default:
		c.JSON(http.StatusServiceUnavailable, errorResponse{
			Error: "llm unconfigured and mock disabled",
			Kind:  string(apperrors.KindInternal),
		})
		return
	}

	if err := s.utterances.RecordAgent(ctx, call.ID, responseText, callerEndMS); err != nil {
		respondError(c, apperrors.Wrap(apperrors.KindInternal, "record agent utterance", err))
		return
	}

	if _, err := s.events.Append(ctx, call.ID, "user_turn_completed", map[string]any{
		"trace_id": traceID,
		"mode":     mode,
		"text":     req.Text,
	}); err != nil {
		respondError(c, apperrors.Wrap(apperrors.KindInternal, "append user_turn_completed", err))
		return
	}

	c.JSON(http.StatusOK, userTurnResponse{
		CallID:          call.ID,
		TraceID:         traceID,
		Mode:            mode,
		ResponseText:    responseText,
		ToolExecutionID: toolExecutionID,
	})
}

// runTool executes a resolved tool call and renders either its response or
// the caller-facing Spanish fallback on failure.
func (s *Server) runTool(ctx context.Context, callID, tenantID, agentVersionID, toolName string, args map[string]any) (string, string) {
	result, err := s.tools.Execute(ctx, toolgateway.ExecuteInput{
		CallID:         callID,
		TenantID:       tenantID,
		AgentVersionID: agentVersionID,
		ToolName:       toolName,
		Args:           args,
	})
	if err != nil {
		execID := ""
		if result != nil && result.Execution != nil {
			execID = result.Execution.ID
		}
		return fmt.Sprintf("No pude ejecutar la herramienta %s. Error: %s", toolName, err.Error()), execID
	}
	return fmt.Sprintf("Tool %s completed.", toolName), result.Execution.ID
}
