package voice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/codeready-toolchain/voicerelay/pkg/codec"
)

// HTTPTTSConfig configures the generic HTTP TTS provider. The "remote"
// provider) is just a second instance of this
// same type with a different BaseURL/APIKey — no separate code path.
type HTTPTTSConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	RetryBase  time.Duration
}

type ttsRequestBody struct {
	Text       string `json:"text"`
	SampleRate int    `json:"sample_rate"`
}

type ttsJSONResponse struct {
	AudioBase64 string `json:"audio_base64"`
	SampleRate  int    `json:"sample_rate"`
}

// httpTTS POSTs text to a configurable HTTP endpoint and accepts either a
// raw PCM body, a WAV body, or a JSON envelope with base64 PCM.
type httpTTS struct {
	cfg    HTTPTTSConfig
	client *http.Client
}

// NewHTTPTTS builds a TTS adapter against a generic HTTP synthesis endpoint.
func NewHTTPTTS(cfg HTTPTTSConfig) TTS {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 250 * time.Millisecond
	}
	return &httpTTS{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (t *httpTTS) Synthesize(ctx context.Context, text string, sampleRate int) (AudioPacket, error) {
	var lastErr error
	for attempt := 0; attempt <= t.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := t.cfg.RetryBase * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return AudioPacket{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		packet, retryable, err := t.attempt(ctx, text, sampleRate)
		if err == nil {
			return packet, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	slog.Warn("tts provider failed, using sine-tone stand-in", "error", lastErr)
	return sineToneTTS{}.Synthesize(ctx, text, sampleRate)
}

func (t *httpTTS) attempt(ctx context.Context, text string, sampleRate int) (AudioPacket, bool, error) {
	body, err := json.Marshal(ttsRequestBody{Text: text, SampleRate: sampleRate})
	if err != nil {
		return AudioPacket{}, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return AudioPacket{}, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return AudioPacket{}, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == 408 || resp.StatusCode == 429 || resp.StatusCode >= 500 {
		return AudioPacket{}, true, fmt.Errorf("tts provider returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != 200 {
		return AudioPacket{}, false, fmt.Errorf("tts provider returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return AudioPacket{}, true, err
	}

	contentType := resp.Header.Get("Content-Type")
	switch {
	case bytes.HasPrefix(raw, []byte("RIFF")):
		wav, err := codec.ParseWAV(raw)
		if err != nil {
			return AudioPacket{}, false, err
		}
		return AudioPacket{Samples: wav.Samples, SampleRate: wav.SampleRate}, false, nil
	case bytesLooksJSON(contentType, raw):
		var jsonResp ttsJSONResponse
		if err := json.Unmarshal(raw, &jsonResp); err != nil {
			return AudioPacket{}, false, err
		}
		decoded, err := base64.StdEncoding.DecodeString(jsonResp.AudioBase64)
		if err != nil {
			return AudioPacket{}, false, err
		}
		return AudioPacket{Samples: bytesToPCM(decoded), SampleRate: jsonResp.SampleRate}, false, nil
	default:
		return AudioPacket{Samples: bytesToPCM(raw), SampleRate: sampleRate}, false, nil
	}
}

func bytesLooksJSON(contentType string, raw []byte) bool {
	if len(raw) == 0 {
		return false
	}
	if contentType != "" && contentTypeIsJSON(contentType) {
		return true
	}
	return raw[0] == '{'
}

func contentTypeIsJSON(contentType string) bool {
	return contentType == "application/json" || bytes.Contains([]byte(contentType), []byte("json"))
}

func bytesToPCM(raw []byte) []int16 {
	out := make([]int16, len(raw)/2)
	for i := range out {
		out[i] = int16(uint16(raw[i*2]) | uint16(raw[i*2+1])<<8)
	}
	return out
}

// sineToneTTS synthesizes a deterministic sine-tone stand-in, used when no
// TTS provider is configured or every attempt has failed. Its duration
// scales with text length, bounded to 300-1800ms.
type sineToneTTS struct{}

// NewSineToneTTS builds the deterministic fallback TTS adapter.
func NewSineToneTTS() TTS { return sineToneTTS{} }

func (sineToneTTS) Synthesize(ctx context.Context, text string, sampleRate int) (AudioPacket, error) {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	durationMS := len(text) * 15
	if durationMS < 300 {
		durationMS = 300
	}
	if durationMS > 1800 {
		durationMS = 1800
	}

	numSamples := sampleRate * durationMS / 1000
	samples := make([]int16, numSamples)
	const freqHz = 440.0
	for i := range samples {
		t := float64(i) / float64(sampleRate)
		samples[i] = int16(8000 * math.Sin(2*math.Pi*freqHz*t))
	}

	slog.Debug("synthesized sine-tone stand-in", "duration_ms", durationMS)
	return AudioPacket{Samples: samples, SampleRate: sampleRate}, nil
}
