// Package voice owns the per-call voice session: STT/TTS/transport
// adapters, the session state machine, and barge-in detection.
package voice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is one of the session lifecycle states: NONE -> STARTING -> READY
// -> {SPEAKING <-> LISTENING} -> CLOSED.
type State string

// Session states.
const (
	StateNone     State = "none"
	StateStarting State = "starting"
	StateReady    State = "ready"
	StateSpeaking State = "speaking"
	StateListening State = "listening"
	StateClosed   State = "closed"
)

// Config tunes barge-in and transport behavior.
type Config struct {
	Enabled              bool
	MockTransport        bool
	STTHardFail          bool
	BargeInEnabled       bool
	BargeInEnergyThresh  float64
	BargeInHoldMS        int
	AutoGreetingEnabled  bool
}

// Input describes a session's carrier-side identity.
type Input struct {
	CallID         string
	Room           string
	JoinToken      string
	LiveKitURL     string
	GreetingText   string
}

// Hooks are the optional callbacks the route layer supplies.
type Hooks struct {
	OnBargeIn func(callID string)
	OnTranscript func(callID string, evt TranscriptEvent)
}

// StartOutcome describes the result of Start.
type StartOutcome string

// Outcomes.
const (
	OutcomeStarted        StartOutcome = "started"
	OutcomeDisabled       StartOutcome = "disabled"
	OutcomeAlreadyStarted StartOutcome = "already_started"
	OutcomeFailed         StartOutcome = "failed"
)

// runtime is the in-memory VoiceSessionRuntime.
type runtime struct {
	mu              sync.Mutex
	callID          string
	stt             STT
	tts             TTS
	transport       Transport
	hooks           Hooks
	cfg             Config
	state           State
	startedAt       time.Time
	speakingUntilMS int64
}

// Manager owns the process-wide, per-call runtime map with fine-grained
// locking per call id, never a single mutex.
type Manager struct {
	mu       sync.RWMutex
	runtimes map[string]*runtime
	newSTT   func(Config) STT
	newTTS   func(Config) TTS
	newTransport func(Config, Input) Transport
}

// NewManager builds a Manager. The factory functions let callers choose
// real vs mock adapters per the provided Config without the Manager caring.
func NewManager(newSTT func(Config) STT, newTTS func(Config) TTS, newTransport func(Config, Input) Transport) *Manager {
	return &Manager{
		runtimes:     make(map[string]*runtime),
		newSTT:       newSTT,
		newTTS:       newTTS,
		newTransport: newTransport,
	}
}

// Start constructs and connects a session's adapters.
func (m *Manager) Start(ctx context.Context, in Input, cfg Config, hooks Hooks) (StartOutcome, error) {
	if !cfg.Enabled {
		return OutcomeDisabled, nil
	}

	m.mu.Lock()
	if _, exists := m.runtimes[in.CallID]; exists {
		m.mu.Unlock()
		return OutcomeAlreadyStarted, nil
	}
	r := &runtime{
		callID: in.CallID,
		cfg:    cfg,
		hooks:  hooks,
		state:  StateStarting,
	}
	m.runtimes[in.CallID] = r
	m.mu.Unlock()

	transport := m.newTransport(cfg, in)
	if err := transport.Connect(ctx, in.JoinToken); err != nil {
		m.mu.Lock()
		delete(m.runtimes, in.CallID)
		m.mu.Unlock()
		return OutcomeFailed, fmt.Errorf("voice: connect transport: %w", err)
	}

	stt := m.newSTT(cfg)
	if err := stt.Start(ctx); err != nil && cfg.STTHardFail {
		_ = transport.Disconnect()
		m.mu.Lock()
		delete(m.runtimes, in.CallID)
		m.mu.Unlock()
		return OutcomeFailed, fmt.Errorf("voice: start stt: %w", err)
	}

	r.mu.Lock()
	r.stt = stt
	r.tts = m.newTTS(cfg)
	r.transport = transport
	r.startedAt = time.Now()
	r.state = StateReady
	r.mu.Unlock()

	go m.forwardTranscripts(r)

	if cfg.AutoGreetingEnabled && in.GreetingText != "" {
		if _, err := m.Speak(ctx, in.CallID, in.GreetingText); err != nil {
			slog.Warn("greeting synthesis failed", "call_id", in.CallID, "error", err)
		}
	}

	return OutcomeStarted, nil
}

func (m *Manager) forwardTranscripts(r *runtime) {
	for evt := range r.stt.Events() {
		if r.hooks.OnTranscript != nil {
			r.hooks.OnTranscript(r.callID, evt)
		}
	}
}

// Speak synthesizes and publishes text, entering SPEAKING state for the
// packet's playback duration.
func (m *Manager) Speak(ctx context.Context, callID, text string) (AudioPacket, error) {
	r, ok := m.get(callID)
	if !ok {
		return AudioPacket{}, fmt.Errorf("voice: no session for call %s", callID)
	}

	r.mu.Lock()
	tts := r.tts
	transport := r.transport
	r.mu.Unlock()

	packet, err := tts.Synthesize(ctx, text, 16000)
	if err != nil {
		return AudioPacket{}, fmt.Errorf("voice: synthesize: %w", err)
	}

	if err := transport.PublishAudio(packet); err != nil {
		return AudioPacket{}, fmt.Errorf("voice: publish audio: %w", err)
	}

	durationMS := packet.DurationMS()
	if durationMS < r.cfg.BargeInHoldMS {
		durationMS = r.cfg.BargeInHoldMS
	}

	r.mu.Lock()
	r.state = StateSpeaking
	r.speakingUntilMS = nowMS() + int64(durationMS)
	r.mu.Unlock()

	return packet, nil
}

// IngestInboundAudio forwards a caller frame to STT, detecting barge-in
// first.
func (m *Manager) IngestInboundAudio(callID string, frame []int16) error {
	r, ok := m.get(callID)
	if !ok {
		return fmt.Errorf("voice: no session for call %s", callID)
	}

	energy := RMSEnergy(frame)

	r.mu.Lock()
	speakingUntil := r.speakingUntilMS
	bargeInEnabled := r.cfg.BargeInEnabled
	threshold := r.cfg.BargeInEnergyThresh
	transport := r.transport
	hooks := r.hooks
	r.mu.Unlock()

	if bargeInEnabled && nowMS() < speakingUntil && energy >= threshold {
		if err := transport.InterruptPlayback(); err != nil {
			return fmt.Errorf("voice: interrupt playback: %w", err)
		}
		r.mu.Lock()
		r.speakingUntilMS = 0
		r.state = StateListening
		r.mu.Unlock()
		if hooks.OnBargeIn != nil {
			hooks.OnBargeIn(callID)
		}
	}

	r.mu.Lock()
	stt := r.stt
	r.mu.Unlock()
	if stt == nil {
		return nil
	}
	return stt.IngestAudio(frame)
}

// Stop tears down a session's adapters and removes its runtime entry.
func (m *Manager) Stop(callID string) error {
	m.mu.Lock()
	r, ok := m.runtimes[callID]
	if ok {
		delete(m.runtimes, callID)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}

	r.mu.Lock()
	r.state = StateClosed
	stt, transport := r.stt, r.transport
	r.mu.Unlock()

	var errs []error
	if stt != nil {
		if err := stt.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if transport != nil {
		if err := transport.Disconnect(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("voice: stop session %s: %v", callID, errs)
	}
	return nil
}

// State returns the current lifecycle state for a call, or StateNone if no
// runtime exists.
func (m *Manager) State(callID string) State {
	r, ok := m.get(callID)
	if !ok {
		return StateNone
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (m *Manager) get(callID string) (*runtime, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runtimes[callID]
	return r, ok
}

func nowMS() int64 { return time.Now().UnixMilli() }
