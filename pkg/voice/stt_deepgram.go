package voice

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const deepgramKeepAliveInterval = 8 * time.Second

// DeepgramConfig configures the bidirectional-WebSocket STT adapter.
type DeepgramConfig struct {
	URL        string
	APIKey     string
	HardFail   bool // when true, a connect failure aborts session start
	SampleRate int
}

type deepgramMessage struct {
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal bool `json:"is_final"`
}

// deepgramSTT streams caller audio to Deepgram's real-time API over a
// persistent WebSocket connection.
type deepgramSTT struct {
	cfg    DeepgramConfig
	conn   *websocket.Conn
	events chan TranscriptEvent

	mu     sync.Mutex
	closed bool
	stopCh chan struct{}
}

// NewDeepgramSTT builds an STT adapter bound to a Deepgram endpoint.
func NewDeepgramSTT(cfg DeepgramConfig) STT {
	return &deepgramSTT{
		cfg:    cfg,
		events: make(chan TranscriptEvent, 32),
		stopCh: make(chan struct{}),
	}
}

func (s *deepgramSTT) Start(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", fmt.Sprintf("Token %s", s.cfg.APIKey))

	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return fmt.Errorf("voice: parse deepgram url: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if s.cfg.HardFail {
			return fmt.Errorf("voice: deepgram connect: %w", err)
		}
		slog.Warn("deepgram connect failed, continuing without STT", "error", err)
		return nil
	}
	s.conn = conn

	go s.readLoop()
	go s.keepAliveLoop()
	return nil
}

func (s *deepgramSTT) readLoop() {
	for {
		if s.conn == nil {
			return
		}
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg deepgramMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if len(msg.Channel.Alternatives) == 0 {
			continue
		}
		alt := msg.Channel.Alternatives[0]
		select {
		case s.events <- TranscriptEvent{
			Text:       alt.Transcript,
			IsFinal:    msg.IsFinal,
			Confidence: alt.Confidence,
			Provider:   "deepgram",
		}:
		default:
		}
	}
}

func (s *deepgramSTT) keepAliveLoop() {
	ticker := time.NewTicker(deepgramKeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.conn == nil {
				continue
			}
			if err := s.conn.WriteJSON(map[string]string{"type": "KeepAlive"}); err != nil {
				return
			}
		}
	}
}

func (s *deepgramSTT) IngestAudio(frame []int16) error {
	if s.conn == nil {
		return nil
	}
	buf := make([]byte, len(frame)*2)
	for i, sample := range frame {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(sample))
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, buf)
}

func (s *deepgramSTT) Events() <-chan TranscriptEvent { return s.events }

func (s *deepgramSTT) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.stopCh)
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// mockSTT is the deterministic stand-in used in mock mode.
type mockSTT struct {
	events chan TranscriptEvent
}

// NewMockSTT builds an STT adapter that never reaches a network.
func NewMockSTT() STT {
	return &mockSTT{events: make(chan TranscriptEvent, 8)}
}

func (m *mockSTT) Start(ctx context.Context) error          { return nil }
func (m *mockSTT) IngestAudio(frame []int16) error           { return nil }
func (m *mockSTT) Events() <-chan TranscriptEvent            { return m.events }
func (m *mockSTT) Stop() error                                { close(m.events); return nil }
