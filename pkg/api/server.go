// Package api implements the control-plane HTTP surface: the carrier
// webhook that starts a call, the internal dispatch-claim endpoint for
// service-credential callers, the connector-facing user-turn and session-end endpoints,
// a health check, and minimal CRUD stubs over the catalog tables.
package api

import (
	"time"

	"github.com/codeready-toolchain/voicerelay/pkg/config"
	"github.com/codeready-toolchain/voicerelay/pkg/database"
	"github.com/codeready-toolchain/voicerelay/pkg/dispatch"
	"github.com/codeready-toolchain/voicerelay/pkg/eventlog"
	"github.com/codeready-toolchain/voicerelay/pkg/toolgateway"
	"github.com/codeready-toolchain/voicerelay/pkg/utterance"
	"github.com/gin-gonic/gin"
	"github.com/sashabaranov/go-openai"
)

// Server wires the database, dispatch store, event log, and tool gateway
// into a gin router.
type Server struct {
	db         *database.Client
	events     *eventlog.Log
	dispatch   *dispatch.Store
	tools      *toolgateway.Gateway
	utterances *utterance.Log
	llm        *openai.Client
	auth       *ServiceAuth
	cfg        config.Config

	engine *gin.Engine
}

// New builds a Server and registers all routes.
func New(db *database.Client, tools *toolgateway.Gateway, cfg config.Config) *Server {
	gin.SetMode(cfg.GinMode)

	var llm *openai.Client
	if cfg.Tool.OpenAIAPIKey != "" {
		llm = openai.NewClient(cfg.Tool.OpenAIAPIKey)
	}

	s := &Server{
		db:         db,
		events:     eventlog.New(db.Client),
		dispatch:   dispatch.New(db.Client),
		tools:      tools,
		utterances: utterance.New(db.Client),
		llm:        llm,
		auth:       NewServiceAuth(cfg.API.WebhookHMACSecret, 2*time.Minute),
		cfg:        cfg,
		engine:     gin.New(),
	}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

// Engine exposes the underlying gin engine, e.g. for http.ListenAndServe.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)

	s.engine.POST("/webhook/voice", s.handleVoiceWebhook)

	internal := s.engine.Group("/internal")
	internal.POST("/dispatches/:id/claim", s.handleClaimDispatch)

	runtime := s.engine.Group("/runtime")
	runtime.POST("/sessions/:callId/user-turn", s.handleUserTurn)
	runtime.POST("/sessions/:callId/end", s.handleSessionEnd)

	catalog := s.engine.Group("/catalog")
	catalog.GET("/tools", s.listTools)
	catalog.POST("/tools", s.createTool)
	catalog.GET("/tool-endpoints", s.listToolEndpoints)
	catalog.POST("/tool-endpoints", s.createToolEndpoint)
	catalog.GET("/tenant-integrations", s.listTenantIntegrations)
	catalog.POST("/tenant-integrations", s.createTenantIntegration)
	catalog.GET("/agents", s.listAgents)
	catalog.POST("/agents", s.createAgent)
	catalog.GET("/agents/:agentId/versions", s.listAgentVersions)
	catalog.POST("/agents/:agentId/versions", s.createAgentVersion)
	catalog.POST("/agent-versions/:versionId/tools", s.attachAgentTool)
}
