package api

import (
	"net/http"

	"github.com/codeready-toolchain/voicerelay/ent/agent"
	"github.com/codeready-toolchain/voicerelay/ent/agentversion"
	"github.com/codeready-toolchain/voicerelay/ent/tenantintegration"
	"github.com/codeready-toolchain/voicerelay/ent/tool"
	"github.com/codeready-toolchain/voicerelay/ent/toolendpoint"
	"github.com/codeready-toolchain/voicerelay/pkg/apperrors"
	"github.com/codeready-toolchain/voicerelay/pkg/secrets"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// tenantScoped reads the mandatory X-Tenant-Id header every catalog
// endpoint scopes its query by.
func tenantScoped(c *gin.Context) (string, bool) {
	t := c.GetHeader("X-Tenant-Id")
	if t == "" {
		respondError(c, apperrors.New(apperrors.KindInvalidPayload, "missing X-Tenant-Id header"))
		return "", false
	}
	return t, true
}

func (s *Server) listTools(c *gin.Context) {
	tenantID, ok := tenantScoped(c)
	if !ok {
		return
	}
	rows, err := s.db.Tool.Query().Where(tool.TenantIDEQ(tenantID)).All(c.Request.Context())
	if err != nil {
		respondError(c, apperrors.Wrap(apperrors.KindInternal, "list tools", err))
		return
	}
	c.JSON(http.StatusOK, rows)
}

type createToolRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

func (s *Server) createTool(c *gin.Context) {
	tenantID, ok := tenantScoped(c)
	if !ok {
		return
	}
	var req createToolRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		respondError(c, apperrors.New(apperrors.KindInvalidPayload, "name is required"))
		return
	}
	created, err := s.db.Tool.Create().
		SetID(uuid.NewString()).
		SetTenantID(tenantID).
		SetName(req.Name).
		SetDescription(req.Description).
		SetInputSchema(req.InputSchema).
		Save(c.Request.Context())
	if err != nil {
		respondError(c, apperrors.Wrap(apperrors.KindInternal, "create tool", err))
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) listToolEndpoints(c *gin.Context) {
	toolID := c.Query("tool_id")
	q := s.db.ToolEndpoint.Query()
	if toolID != "" {
		q = q.Where(toolendpoint.ToolIDEQ(toolID))
	}
	rows, err := q.All(c.Request.Context())
	if err != nil {
		respondError(c, apperrors.Wrap(apperrors.KindInternal, "list tool endpoints", err))
		return
	}
	c.JSON(http.StatusOK, rows)
}

type createToolEndpointRequest struct {
	ToolID              string            `json:"tool_id"`
	TenantIntegrationID string            `json:"tenant_integration_id"`
	Method              string            `json:"method"`
	URLTemplate         string            `json:"url_template"`
	HeaderTemplate      map[string]string `json:"header_template"`
	TimeoutMs           int               `json:"timeout_ms"`
	MaxRetries          int               `json:"max_retries"`
}

func (s *Server) createToolEndpoint(c *gin.Context) {
	var req createToolEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ToolID == "" || req.URLTemplate == "" {
		respondError(c, apperrors.New(apperrors.KindInvalidPayload, "tool_id and url_template are required"))
		return
	}
	builder := s.db.ToolEndpoint.Create().
		SetID(uuid.NewString()).
		SetToolID(req.ToolID).
		SetURLTemplate(req.URLTemplate).
		SetHeaderTemplate(req.HeaderTemplate)
	if req.Method != "" {
		builder = builder.SetMethod(req.Method)
	}
	if req.TimeoutMs > 0 {
		builder = builder.SetTimeoutMs(req.TimeoutMs)
	}
	if req.MaxRetries > 0 {
		builder = builder.SetMaxRetries(req.MaxRetries)
	}
	if req.TenantIntegrationID != "" {
		builder = builder.SetTenantIntegrationID(req.TenantIntegrationID)
	}
	created, err := builder.Save(c.Request.Context())
	if err != nil {
		respondError(c, apperrors.Wrap(apperrors.KindInternal, "create tool endpoint", err))
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) listTenantIntegrations(c *gin.Context) {
	tenantID, ok := tenantScoped(c)
	if !ok {
		return
	}
	rows, err := s.db.TenantIntegration.Query().Where(tenantintegration.TenantIDEQ(tenantID)).All(c.Request.Context())
	if err != nil {
		respondError(c, apperrors.Wrap(apperrors.KindInternal, "list tenant integrations", err))
		return
	}
	c.JSON(http.StatusOK, rows)
}

type createTenantIntegrationRequest struct {
	Name     string `json:"name"`
	AuthKind string `json:"auth_kind"`
	Secret   string `json:"secret"`
	BaseURL  string `json:"base_url"`
}

func (s *Server) createTenantIntegration(c *gin.Context) {
	tenantID, ok := tenantScoped(c)
	if !ok {
		return
	}
	var req createTenantIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" || req.Secret == "" {
		respondError(c, apperrors.New(apperrors.KindInvalidPayload, "name and secret are required"))
		return
	}
	if s.cfg.API.SecretsEncryptionKey == "" {
		respondError(c, apperrors.New(apperrors.KindInternal, "secrets encryption key not configured"))
		return
	}
	codec, err := secrets.New([]byte(s.cfg.API.SecretsEncryptionKey))
	if err != nil {
		respondError(c, apperrors.Wrap(apperrors.KindInternal, "build secrets codec", err))
		return
	}
	envelope, err := codec.Encode(req.Secret)
	if err != nil {
		respondError(c, apperrors.Wrap(apperrors.KindInternal, "encrypt secret", err))
		return
	}

	created, err := s.db.TenantIntegration.Create().
		SetID(uuid.NewString()).
		SetTenantID(tenantID).
		SetName(req.Name).
		SetAuthKind(req.AuthKind).
		SetEncryptedSecret(envelope).
		SetBaseURL(req.BaseURL).
		Save(c.Request.Context())
	if err != nil {
		respondError(c, apperrors.Wrap(apperrors.KindInternal, "create tenant integration", err))
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) listAgents(c *gin.Context) {
	tenantID, ok := tenantScoped(c)
	if !ok {
		return
	}
	rows, err := s.db.Agent.Query().Where(agent.TenantIDEQ(tenantID)).All(c.Request.Context())
	if err != nil {
		respondError(c, apperrors.Wrap(apperrors.KindInternal, "list agents", err))
		return
	}
	c.JSON(http.StatusOK, rows)
}

type createAgentRequest struct {
	Name         string `json:"name"`
	PhoneNumber  string `json:"phone_number"`
	GreetingText string `json:"greeting_text"`
}

func (s *Server) createAgent(c *gin.Context) {
	tenantID, ok := tenantScoped(c)
	if !ok {
		return
	}
	var req createAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		respondError(c, apperrors.New(apperrors.KindInvalidPayload, "name is required"))
		return
	}
	builder := s.db.Agent.Create().
		SetID(uuid.NewString()).
		SetTenantID(tenantID).
		SetName(req.Name)
	if req.PhoneNumber != "" {
		builder = builder.SetPhoneNumber(req.PhoneNumber)
	}
	if req.GreetingText != "" {
		builder = builder.SetGreetingText(req.GreetingText)
	}
	created, err := builder.Save(c.Request.Context())
	if err != nil {
		respondError(c, apperrors.Wrap(apperrors.KindInternal, "create agent", err))
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) listAgentVersions(c *gin.Context) {
	agentID := c.Param("agentId")
	rows, err := s.db.AgentVersion.Query().Where(agentversion.AgentIDEQ(agentID)).All(c.Request.Context())
	if err != nil {
		respondError(c, apperrors.Wrap(apperrors.KindInternal, "list agent versions", err))
		return
	}
	c.JSON(http.StatusOK, rows)
}

type createAgentVersionRequest struct {
	Version      int    `json:"version"`
	SystemPrompt string `json:"system_prompt"`
	Publish      bool   `json:"publish"`
}

func (s *Server) createAgentVersion(c *gin.Context) {
	agentID := c.Param("agentId")
	var req createAgentVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Version <= 0 {
		respondError(c, apperrors.New(apperrors.KindInvalidPayload, "version must be positive"))
		return
	}

	ctx := c.Request.Context()
	if req.Publish {
		if _, err := s.db.AgentVersion.Update().
			Where(agentversion.AgentIDEQ(agentID), agentversion.PublishedEQ(true)).
			SetPublished(false).
			Save(ctx); err != nil {
			respondError(c, apperrors.Wrap(apperrors.KindInternal, "unpublish prior version", err))
			return
		}
	}

	builder := s.db.AgentVersion.Create().
		SetID(uuid.NewString()).
		SetAgentID(agentID).
		SetVersion(req.Version).
		SetSystemPrompt(req.SystemPrompt).
		SetPublished(req.Publish)
	created, err := builder.Save(ctx)
	if err != nil {
		respondError(c, apperrors.Wrap(apperrors.KindInternal, "create agent version", err))
		return
	}
	c.JSON(http.StatusCreated, created)
}

type attachAgentToolRequest struct {
	ToolID string `json:"tool_id"`
}

func (s *Server) attachAgentTool(c *gin.Context) {
	versionID := c.Param("versionId")
	var req attachAgentToolRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ToolID == "" {
		respondError(c, apperrors.New(apperrors.KindInvalidPayload, "tool_id is required"))
		return
	}
	created, err := s.db.AgentTool.Create().
		SetID(uuid.NewString()).
		SetAgentVersionID(versionID).
		SetToolID(req.ToolID).
		Save(c.Request.Context())
	if err != nil {
		respondError(c, apperrors.Wrap(apperrors.KindInternal, "attach agent tool", err))
		return
	}
	c.JSON(http.StatusCreated, created)
}
