package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/codeready-toolchain/voicerelay/pkg/codec"
	"github.com/codeready-toolchain/voicerelay/pkg/config"
	"github.com/codeready-toolchain/voicerelay/pkg/telemetry"
	"github.com/codeready-toolchain/voicerelay/pkg/turn"
	"github.com/codeready-toolchain/voicerelay/pkg/voice"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

func serveConnectorCmd() *cobra.Command {
	var envPath string
	cmd := &cobra.Command{
		Use:   "serve-connector",
		Short: "Run the per-call voice loop: launch endpoint and carrier media-stream socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServeConnector(envPath)
		},
	}
	cmd.Flags().StringVar(&envPath, "env-file", ".env", "path to a .env file to load before reading the environment")
	return cmd
}

type launchRequest struct {
	CallID         string `json:"call_id"`
	TenantID       string `json:"tenant_id"`
	AgentID        string `json:"agent_id"`
	TraceID        string `json:"trace_id"`
	Room           string `json:"room"`
	TwilioCallSID  string `json:"twilio_call_sid"`
	LiveKitURL     string `json:"livekit_url"`
	AgentJoinToken string `json:"agent_join_token"`
}

type connector struct {
	cfg        config.Config
	voiceCfg   voice.Config
	manager    *voice.Manager
	serializer *turn.Serializer
	http       *http.Client
	upgrader   websocket.Upgrader
	tracer     *telemetry.Tracer
	meters     *telemetry.Meters
}

func runServeConnector(envPath string) error {
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("no .env file loaded from %s: %v", envPath, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	newSTT := func(voice.Config) voice.STT {
		if cfg.MockMode || cfg.Voice.DeepgramAPIKey == "" {
			return voice.NewMockSTT()
		}
		return voice.NewDeepgramSTT(voice.DeepgramConfig{
			URL:    cfg.Voice.DeepgramURL,
			APIKey: cfg.Voice.DeepgramAPIKey,
		})
	}
	newTTS := func(voice.Config) voice.TTS {
		if cfg.MockMode || cfg.Voice.TTSBaseURL == "" {
			return voice.NewSineToneTTS()
		}
		return voice.NewHTTPTTS(voice.HTTPTTSConfig{
			BaseURL: cfg.Voice.TTSBaseURL,
			APIKey:  cfg.Voice.TTSAPIKey,
		})
	}
	newTransport := func(_ voice.Config, in voice.Input) voice.Transport {
		if cfg.MockMode {
			return voice.NewMockTransport()
		}
		return voice.NewRoomTransport(voice.RoomTransportConfig{
			URL:      in.LiveKitURL,
			Room:     in.Room,
			Identity: "agent-" + in.CallID,
		})
	}

	tracer, _, err := telemetry.New(context.Background(), telemetry.Config{ServiceName: "voicerelay-connector"})
	if err != nil {
		return err
	}
	meters, err := telemetry.NewMeters("voicerelay-connector")
	if err != nil {
		return err
	}

	conn := &connector{
		cfg: cfg,
		voiceCfg: voice.Config{
			Enabled:             cfg.Voice.Enabled,
			MockTransport:       cfg.MockMode,
			STTHardFail:         cfg.Voice.STTHardFail,
			BargeInEnabled:      cfg.Voice.BargeInEnabled,
			BargeInEnergyThresh: cfg.Voice.BargeInEnergyThresh,
			BargeInHoldMS:       cfg.Voice.BargeInHoldMS,
			AutoGreetingEnabled: cfg.Voice.AutoGreetingEnabled,
		},
		manager:    voice.NewManager(newSTT, newTTS, newTransport),
		serializer: turn.New(),
		http:       &http.Client{Timeout: 20 * time.Second},
		upgrader:   websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		tracer:     tracer,
		meters:     meters,
	}

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.POST("/launch", conn.handleLaunch)
	router.GET("/media-stream", conn.handleMediaStream)

	log.Printf("connector listening on :%s", cfg.HTTPPort)
	return router.Run(":" + cfg.HTTPPort)
}

// handleLaunch is the endpoint the launcher worker POSTs to: it starts the
// voice session for one call and, when an auto-greeting is configured,
// speaks it immediately.
func (c *connector) handleLaunch(ctx *gin.Context) {
	var req launchRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := c.manager.Start(ctx.Request.Context(), voice.Input{
		CallID:       req.CallID,
		Room:         req.Room,
		JoinToken:    req.AgentJoinToken,
		LiveKitURL:   req.LiveKitURL,
		GreetingText: c.cfg.Voice.GreetingText,
	}, c.voiceCfg, voice.Hooks{
		OnTranscript: func(callID string, evt voice.TranscriptEvent) {
			c.handleTranscript(callID, req, evt)
		},
	})
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"call_id": req.CallID, "outcome": outcome})
}

// handleTranscript runs one finished caller utterance through the turn
// serializer (at-most-one in-flight turn per call), calls the control
// plane's user-turn endpoint, and speaks the reply.
func (c *connector) handleTranscript(callID string, req launchRequest, evt voice.TranscriptEvent) {
	if !evt.IsFinal {
		return
	}
	c.serializer.EnqueueTurn(context.Background(), callID, func(ctx context.Context) error {
		started := time.Now()
		if c.tracer != nil {
			var span trace.Span
			ctx, span = c.tracer.Start(ctx, "turn", trace.SpanKindInternal)
			defer span.End()
		}

		text, err := c.callUserTurn(ctx, callID, req.TraceID, evt.Text, evt.Confidence)
		if c.meters != nil {
			status := "success"
			if err != nil {
				status = "error"
			}
			c.meters.TurnLatency.Record(ctx, float64(time.Since(started).Milliseconds()),
				metric.WithAttributes(attribute.String("status", status)))
		}
		if err != nil {
			slog.Error("user-turn call failed", "call_id", callID, "error", err)
			return err
		}
		if text == "" {
			return nil
		}
		if _, err := c.manager.Speak(ctx, callID, text); err != nil {
			slog.Error("speak reply failed", "call_id", callID, "error", err)
			return err
		}
		return nil
	})
}

func (c *connector) callUserTurn(ctx context.Context, callID, traceID, text string, confidence float64) (string, error) {
	body, err := json.Marshal(map[string]any{"text": text, "confidence": confidence})
	if err != nil {
		return "", err
	}
	url := c.cfg.Dispatch.ControlPlaneBaseURL + "/runtime/sessions/" + callID + "/user-turn"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Trace-Id", traceID)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		ResponseText string `json:"response_text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.ResponseText, nil
}

// callSessionEnd notifies the control plane that a call's media stream has
// stopped so the retention finalize worker can stamp it ended, compute its
// CallMetric, and schedule its DeletionJob.
func (c *connector) callSessionEnd(ctx context.Context, callID string) error {
	body, err := json.Marshal(map[string]string{"outcome": "resolved"})
	if err != nil {
		return err
	}
	url := c.cfg.Dispatch.ControlPlaneBaseURL + "/runtime/sessions/" + callID + "/end"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// mediaFrame is one JSON frame of the carrier's inbound media-stream
// WebSocket protocol.
type mediaFrame struct {
	Event           string `json:"event"`
	StreamSID       string `json:"streamSid"`
	Start           *struct {
		CallSID         string            `json:"callSid"`
		CustomParameters map[string]string `json:"customParameters"`
	} `json:"start"`
	Media *struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

// handleMediaStream accepts the carrier's inbound audio socket, validates
// the shared media-stream token, and bridges narrowband carrier frames into
// the session's wideband room transport.
func (c *connector) handleMediaStream(ctx *gin.Context) {
	if token := ctx.Query("token"); token != "" && token != c.cfg.API.WebhookHMACSecret {
		ctx.AbortWithStatus(http.StatusForbidden)
		return
	}

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		slog.Error("media-stream upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var callID string
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if callID != "" {
				_ = c.manager.Stop(callID)
			}
			return
		}

		var frame mediaFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}

		switch frame.Event {
		case "start":
			if frame.Start == nil {
				continue
			}
			if tok, ok := frame.Start.CustomParameters["token"]; ok && tok != c.cfg.API.WebhookHMACSecret {
				_ = conn.Close()
				return
			}
			callID = frame.Start.CallSID

		case "media":
			if frame.Media == nil || callID == "" {
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(frame.Media.Payload)
			if err != nil {
				continue
			}
			narrowband := codec.MuLawDecode(raw)
			wideband := codec.Resample(narrowband, c.cfg.Codec.CarrierSampleRateHz, c.cfg.Codec.RoomSampleRateHz)
			if err := c.manager.IngestInboundAudio(callID, wideband); err != nil {
				slog.Warn("ingest inbound audio failed", "call_id", callID, "error", err)
			}

		case "stop":
			if callID != "" {
				_ = c.manager.Stop(callID)
				go func(id string) {
					if err := c.callSessionEnd(context.Background(), id); err != nil {
						slog.Error("session-end call failed", "call_id", id, "error", err)
					}
				}(callID)
			}
			return
		}
	}
}
