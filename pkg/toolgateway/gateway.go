// Package toolgateway implements the tool command layer: parsing a turn's
// explicit "/tool name {...}" command or an LLM's tool-choice response,
// resolving it to a callable HTTP endpoint, enforcing the per-call rate
// limit and input schema, dispatching the call with retry, and recording
// the outcome as a ToolExecution row plus a terminal call event.
package toolgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/codeready-toolchain/voicerelay/ent"
	"github.com/codeready-toolchain/voicerelay/ent/toolexecution"
	"github.com/codeready-toolchain/voicerelay/pkg/apperrors"
	"github.com/codeready-toolchain/voicerelay/pkg/eventlog"
	"github.com/codeready-toolchain/voicerelay/pkg/schemavalidate"
	"github.com/codeready-toolchain/voicerelay/pkg/secrets"
	"github.com/codeready-toolchain/voicerelay/pkg/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// ExecuteInput names one tool invocation.
type ExecuteInput struct {
	CallID         string
	TenantID       string
	AgentVersionID string
	ToolName       string
	Args           map[string]any
}

// ExecuteResult is the outcome of a tool call, successful or not.
type ExecuteResult struct {
	Execution *ent.ToolExecution
	Response  map[string]any
}

// Gateway ties resolution, rate limiting, validation, dispatch, and
// persistence into one entry point.
type Gateway struct {
	client      *ent.Client
	events      *eventlog.Log
	limiter     *RateLimiter
	secretCodec *secrets.Codec
	httpClient  *http.Client
	tracer      *telemetry.Tracer
	meters      *telemetry.Meters
}

// New builds a Gateway. secretCodec may be nil when no tenant integration in
// the deployment requires a decrypted secret.
func New(client *ent.Client, limiter *RateLimiter, secretCodec *secrets.Codec) *Gateway {
	return &Gateway{
		client:      client,
		events:      eventlog.New(client),
		limiter:     limiter,
		secretCodec: secretCodec,
		httpClient:  &http.Client{},
	}
}

// WithTelemetry attaches a tracer and meter set, recorded around each
// Execute call. Either argument may be nil.
func (g *Gateway) WithTelemetry(tracer *telemetry.Tracer, meters *telemetry.Meters) *Gateway {
	g.tracer = tracer
	g.meters = meters
	return g
}

// Execute runs the full tool-execution sequence for in.
func (g *Gateway) Execute(ctx context.Context, in ExecuteInput) (*ExecuteResult, error) {
	if g.tracer != nil {
		var span trace.Span
		ctx, span = g.tracer.StartToolCall(ctx, in.ToolName)
		defer span.End()
	}
	started := time.Now()
	result, err := g.execute(ctx, in)
	if g.meters != nil {
		status := "success"
		if err != nil {
			status = statusForError(err)
		}
		g.meters.RecordToolExecution(ctx, status, float64(time.Since(started).Milliseconds()))
	}
	return result, err
}

func (g *Gateway) execute(ctx context.Context, in ExecuteInput) (*ExecuteResult, error) {
	if !g.limiter.Allow(in.CallID) {
		return nil, apperrors.New(apperrors.KindRateLimited, fmt.Sprintf("call %s exceeded tool execution rate limit", in.CallID))
	}

	resolved, err := Resolve(ctx, g.client, in.TenantID, in.ToolName, in.AgentVersionID)
	if err != nil {
		return nil, err
	}

	if issues := schemavalidate.ValidateValue(resolved.Tool.InputSchema, toAny(in.Args)); len(issues) > 0 {
		schemaErr := apperrors.New(apperrors.KindSchemaValidation, fmt.Sprintf("tool %q input: %s", in.ToolName, issues[0].Message))
		return g.recordFailure(ctx, in, resolved.Tool.ID, schemaErr, 0)
	}

	started := time.Now()
	response, attemptErr := g.dispatch(ctx, resolved, in)
	latencyMS := int(time.Since(started).Milliseconds())

	if attemptErr != nil {
		return g.recordFailure(ctx, in, resolved.Tool.ID, attemptErr, latencyMS)
	}

	execution, err := g.client.ToolExecution.Create().
		SetID(uuid.NewString()).
		SetCallID(in.CallID).
		SetToolID(resolved.Tool.ID).
		SetRequest(in.Args).
		SetNillableResponse(nillableMap(response)).
		SetStatus(toolexecution.StatusSuccess).
		SetLatencyMs(latencyMS).
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("toolgateway: persist tool execution: %w", err)
	}

	if _, err := g.events.Append(ctx, in.CallID, "tool_execution_succeeded", map[string]any{
		"tool_execution_id": execution.ID,
		"tool_name":         in.ToolName,
		"latency_ms":        latencyMS,
	}); err != nil {
		return nil, fmt.Errorf("toolgateway: append success event: %w", err)
	}

	return &ExecuteResult{Execution: execution, Response: response}, nil
}

// recordFailure persists a failed ToolExecution and appends the matching
// terminal call event for both a dispatch error and a schema-validation
// rejection that never reached the endpoint.
func (g *Gateway) recordFailure(ctx context.Context, in ExecuteInput, toolID string, attemptErr error, latencyMS int) (*ExecuteResult, error) {
	status := toolexecution.StatusError
	if apperrors.KindOf(attemptErr) == apperrors.KindTimeout {
		status = toolexecution.StatusTimeout
	}
	code := string(apperrors.KindOf(attemptErr))

	execution, err := g.client.ToolExecution.Create().
		SetID(uuid.NewString()).
		SetCallID(in.CallID).
		SetToolID(toolID).
		SetRequest(in.Args).
		SetStatus(status).
		SetLatencyMs(latencyMS).
		SetErrorCode(code).
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("toolgateway: persist tool execution: %w", err)
	}

	if _, err := g.events.Append(ctx, in.CallID, "tool_execution_failed", map[string]any{
		"tool_execution_id": execution.ID,
		"tool_name":         in.ToolName,
		"error_code":        code,
		"latency_ms":        latencyMS,
	}); err != nil {
		return nil, fmt.Errorf("toolgateway: append failure event: %w", err)
	}

	return &ExecuteResult{Execution: execution}, attemptErr
}

func (g *Gateway) dispatch(ctx context.Context, resolved *ResolvedTool, in ExecuteInput) (map[string]any, error) {
	maxRetries := resolved.Endpoint.MaxRetries
	timeout := timeoutFor(resolved.Endpoint)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := 200 * time.Millisecond * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return nil, apperrors.Wrap(apperrors.KindTimeout, "tool call canceled", ctx.Err())
			case <-time.After(backoff):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, retryable, err := g.attempt(callCtx, resolved, in)
		cancel()
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return nil, lastErr
}

func (g *Gateway) attempt(ctx context.Context, resolved *ResolvedTool, in ExecuteInput) (map[string]any, bool, error) {
	req, err := buildRequest(ctx, resolved, g.secretCodec, in.CallID, in.TenantID, in.Args)
	if err != nil {
		return nil, false, apperrors.Wrap(apperrors.KindInvalidPayload, "build tool request", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, apperrors.Wrap(apperrors.KindTimeout, "tool request timed out", ctx.Err())
		}
		return nil, true, apperrors.Wrap(apperrors.KindTransientNetwork, "tool request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, apperrors.Wrap(apperrors.KindTransientNetwork, "read tool response", err)
	}

	if resp.StatusCode == 408 || resp.StatusCode == 429 || resp.StatusCode >= 500 {
		return nil, true, apperrors.New(apperrors.KindTransientNetwork, fmt.Sprintf("tool endpoint returned status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, false, apperrors.New(apperrors.KindInvalidPayload, fmt.Sprintf("tool endpoint returned status %d", resp.StatusCode))
	}

	if len(raw) == 0 {
		return map[string]any{}, false, nil
	}
	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return map[string]any{"raw": string(raw)}, false, nil
	}
	return parsed, false, nil
}

func statusForError(err error) string {
	if apperrors.KindOf(err) == apperrors.KindTimeout {
		return "timeout"
	}
	return "error"
}

func nillableMap(m map[string]any) *map[string]any {
	if m == nil {
		return nil
	}
	return &m
}

func toAny(m map[string]any) any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
