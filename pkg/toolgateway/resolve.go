package toolgateway

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/voicerelay/ent"
	"github.com/codeready-toolchain/voicerelay/ent/agenttool"
	"github.com/codeready-toolchain/voicerelay/ent/tool"
	"github.com/codeready-toolchain/voicerelay/pkg/apperrors"
)

// ResolvedTool carries everything needed to dispatch one tool call: its
// definition, its HTTP endpoint binding, and (when configured) the
// credential to authenticate with.
type ResolvedTool struct {
	Tool        *ent.Tool
	Endpoint    *ent.ToolEndpoint
	Integration *ent.TenantIntegration
}

// Resolve walks the chain tool -> tool_endpoint -> tenant_integration for
// tenantID/toolName, optionally checking that agentVersionID (when non-empty)
// is permitted to call it via an agent_tool row.
func Resolve(ctx context.Context, client *ent.Client, tenantID, toolName, agentVersionID string) (*ResolvedTool, error) {
	t, err := client.Tool.Query().
		Where(tool.TenantIDEQ(tenantID), tool.NameEQ(toolName)).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, apperrors.New(apperrors.KindNotFound, fmt.Sprintf("tool %q not found for tenant", toolName))
		}
		return nil, fmt.Errorf("toolgateway: query tool: %w", err)
	}

	if agentVersionID != "" {
		exists, err := client.AgentTool.Query().
			Where(agenttool.AgentVersionIDEQ(agentVersionID), agenttool.ToolIDEQ(t.ID)).
			Exist(ctx)
		if err != nil {
			return nil, fmt.Errorf("toolgateway: check agent_tool mapping: %w", err)
		}
		if !exists {
			return nil, apperrors.New(apperrors.KindForbidden, fmt.Sprintf("agent is not permitted to call tool %q", toolName))
		}
	}

	endpoint, err := t.QueryEndpoint().Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, apperrors.New(apperrors.KindNotFound, fmt.Sprintf("tool %q has no endpoint configured", toolName))
		}
		return nil, fmt.Errorf("toolgateway: query endpoint: %w", err)
	}

	var integration *ent.TenantIntegration
	if endpoint.TenantIntegrationID != nil {
		integration, err = endpoint.QueryIntegration().Only(ctx)
		if err != nil && !ent.IsNotFound(err) {
			return nil, fmt.Errorf("toolgateway: query integration: %w", err)
		}
	}

	return &ResolvedTool{Tool: t, Endpoint: endpoint, Integration: integration}, nil
}
