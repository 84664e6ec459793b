package config

import (
	"time"

	"github.com/codeready-toolchain/voicerelay/pkg/database"
)

// Config is the umbrella configuration object every process
// (serve-api/serve-worker/serve-connector) assembles at startup.
type Config struct {
	HTTPPort string
	GinMode  string
	MockMode bool

	Database  database.Config
	Dispatch  DispatchConfig
	Tool      ToolConfig
	Voice     VoiceConfig
	Codec     CodecConfig
	API       APIConfig
	Retention RetentionConfig
}

// DispatchConfig tunes the handoff worker, dispatch claimer, and launcher.
type DispatchConfig struct {
	TTL                 time.Duration
	PollInterval        time.Duration
	PollIntervalJitter  time.Duration
	MaxAttempts         int
	BatchSize           int
	ConnectorBaseURL    string
	ControlPlaneBaseURL string
}

// ToolConfig tunes the tool command layer.
type ToolConfig struct {
	CommandPrefix       string
	PerMinuteRateLimit  int
	LLMToolChoiceModel  string
	LLMToolChoiceSystem string
	OpenAIAPIKey        string
}

// VoiceConfig tunes the voice session runtime.
type VoiceConfig struct {
	Enabled             bool
	AutoGreetingEnabled bool
	GreetingText        string
	BargeInEnabled      bool
	BargeInEnergyThresh float64
	BargeInHoldMS       int
	STTHardFail         bool
	DeepgramAPIKey      string
	DeepgramURL         string
	TTSBaseURL          string
	TTSAPIKey           string
	TTSRemoteBaseURL    string
	TTSRemoteAPIKey     string
	LiveKitURL          string
	LiveKitAPIKey       string
	LiveKitAPISecret    string
}

// CodecConfig tunes the codec bridge's default sample rates.
type CodecConfig struct {
	CarrierSampleRateHz int
	RoomSampleRateHz    int
}

// APIConfig tunes the control-plane API.
type APIConfig struct {
	WebhookHMACSecret    string
	SecretsEncryptionKey string
}

// RetentionConfig tunes the nightly KPI rollup, the call finalize worker,
// and the deletion loop.
type RetentionConfig struct {
	RetentionDays      int
	PollInterval       time.Duration
	PollIntervalJitter time.Duration
	BatchSize          int
}

// Load assembles a Config from the process environment. A .env file is
// loaded first by the caller (see cmd/voicerelay) before Load reads the
// environment.
func Load() (Config, error) {
	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		return Config{}, err
	}

	return Config{
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),
		GinMode:  getEnvOrDefault("GIN_MODE", "release"),
		MockMode: getEnvBool("MOCK_MODE", false),
		Database: dbCfg,
		Dispatch: DispatchConfig{
			TTL:                getEnvDuration("DISPATCH_TTL", 2*time.Minute),
			PollInterval:       getEnvDuration("DISPATCH_POLL_INTERVAL", 2*time.Second),
			PollIntervalJitter: getEnvDuration("DISPATCH_POLL_JITTER", 500*time.Millisecond),
			MaxAttempts:          getEnvInt("DISPATCH_MAX_ATTEMPTS", 5),
			BatchSize:            getEnvInt("DISPATCH_BATCH_SIZE", 10),
			ConnectorBaseURL:     getEnvOrDefault("CONNECTOR_BASE_URL", ""),
			ControlPlaneBaseURL:  getEnvOrDefault("CONTROL_PLANE_BASE_URL", "http://localhost:8080"),
		},
		Tool: ToolConfig{
			CommandPrefix:       getEnvOrDefault("TOOL_COMMAND_PREFIX", "/tool"),
			PerMinuteRateLimit:  getEnvInt("TOOL_RATE_LIMIT_PER_MINUTE", 20),
			LLMToolChoiceModel:  getEnvOrDefault("TOOL_LLM_MODEL", "gpt-4o-mini"),
			LLMToolChoiceSystem: getEnvOrDefault("TOOL_LLM_SYSTEM_PROMPT", "You are a voice agent deciding whether to call a tool for the caller's request."),
			OpenAIAPIKey:        getEnvOrDefault("OPENAI_API_KEY", ""),
		},
		Voice: VoiceConfig{
			Enabled:             getEnvBool("VOICE_ENABLED", true),
			AutoGreetingEnabled: getEnvBool("VOICE_AUTO_GREETING_ENABLED", false),
			GreetingText:        getEnvOrDefault("VOICE_GREETING_TEXT", ""),
			BargeInEnabled:      getEnvBool("VOICE_BARGE_IN_ENABLED", true),
			BargeInEnergyThresh: getEnvFloat("VOICE_BARGE_IN_ENERGY_THRESHOLD", 0.05),
			BargeInHoldMS:       getEnvInt("VOICE_BARGE_IN_HOLD_MS", 300),
			STTHardFail:         getEnvBool("VOICE_STT_HARD_FAIL", false),
			DeepgramAPIKey:      getEnvOrDefault("DEEPGRAM_API_KEY", ""),
			DeepgramURL:         getEnvOrDefault("DEEPGRAM_URL", "wss://api.deepgram.com/v1/listen"),
			TTSBaseURL:          getEnvOrDefault("TTS_BASE_URL", ""),
			TTSAPIKey:           getEnvOrDefault("TTS_API_KEY", ""),
			TTSRemoteBaseURL:    getEnvOrDefault("TTS_REMOTE_BASE_URL", ""),
			TTSRemoteAPIKey:     getEnvOrDefault("TTS_REMOTE_API_KEY", ""),
			LiveKitURL:          getEnvOrDefault("LIVEKIT_URL", ""),
			LiveKitAPIKey:       getEnvOrDefault("LIVEKIT_API_KEY", ""),
			LiveKitAPISecret:    getEnvOrDefault("LIVEKIT_API_SECRET", ""),
		},
		Codec: CodecConfig{
			CarrierSampleRateHz: getEnvInt("CODEC_CARRIER_SAMPLE_RATE_HZ", 8000),
			RoomSampleRateHz:    getEnvInt("CODEC_ROOM_SAMPLE_RATE_HZ", 16000),
		},
		API: APIConfig{
			WebhookHMACSecret:    getEnvOrDefault("WEBHOOK_HMAC_SECRET", ""),
			SecretsEncryptionKey: getEnvOrDefault("SECRETS_ENCRYPTION_KEY", ""),
		},
		Retention: RetentionConfig{
			RetentionDays:      getEnvInt("RETENTION_DAYS", 90),
			PollInterval:       getEnvDuration("RETENTION_POLL_INTERVAL", 2*time.Second),
			PollIntervalJitter: getEnvDuration("RETENTION_POLL_JITTER", 500*time.Millisecond),
			BatchSize:          getEnvInt("RETENTION_BATCH_SIZE", 10),
		},
	}, nil
}
