// Package utterance persists the per-call speech-segment timeline and
// enforces its monotonic scheduling invariant: a call's utterances never
// overlap, and each speaker turn is scheduled at a fixed offset from the one
// before it.
package utterance

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/voicerelay/ent"
	"github.com/codeready-toolchain/voicerelay/ent/utterance"
	"github.com/google/uuid"
)

// GapMS is the gap reserved after any utterance ends before the next caller
// utterance may start: next_start_ms = max(end_ms) + GapMS.
const GapMS = 100

// AgentGapMS is the offset an agent reply is scheduled after the caller
// utterance it answers, short enough to feel responsive but long enough to
// never overlap it.
const AgentGapMS = 120

// Log persists Utterance rows for a call's speech timeline.
type Log struct {
	client *ent.Client
}

// New builds a Log over an ent client.
func New(client *ent.Client) *Log {
	return &Log{client: client}
}

// RecordCaller appends a final caller transcript as an utterance starting
// GapMS after the call's latest utterance, and returns its end_ms so the
// agent's reply can be scheduled against it.
func (l *Log) RecordCaller(ctx context.Context, callID, text string, confidence float64) (int, error) {
	lastEnd, err := l.lastEndMS(ctx, callID)
	if err != nil {
		return 0, err
	}
	start := lastEnd + GapMS
	end := start + EstimateDurationMS(text)

	create := l.client.Utterance.Create().
		SetID(uuid.NewString()).
		SetCallID(callID).
		SetSpeaker(utterance.SpeakerCaller).
		SetText(text).
		SetStartMs(start).
		SetEndMs(end)
	if confidence > 0 {
		create = create.SetConfidence(confidence)
	}
	if _, err := create.Save(ctx); err != nil {
		return 0, fmt.Errorf("utterance: record caller: %w", err)
	}
	return end, nil
}

// RecordAgent appends the agent's reply, scheduled to begin AgentGapMS after
// callerEndMS. A blank reply (no tool output, no response text) records
// nothing.
func (l *Log) RecordAgent(ctx context.Context, callID, text string, callerEndMS int) error {
	if text == "" {
		return nil
	}
	start := callerEndMS + AgentGapMS
	end := start + EstimateDurationMS(text)

	if _, err := l.client.Utterance.Create().
		SetID(uuid.NewString()).
		SetCallID(callID).
		SetSpeaker(utterance.SpeakerAgent).
		SetText(text).
		SetStartMs(start).
		SetEndMs(end).
		Save(ctx); err != nil {
		return fmt.Errorf("utterance: record agent: %w", err)
	}
	return nil
}

// lastEndMS returns the call's latest utterance end_ms. A call with no
// utterances yet reports -GapMS, so the first caller utterance starts at 0.
func (l *Log) lastEndMS(ctx context.Context, callID string) (int, error) {
	last, err := l.client.Utterance.Query().
		Where(utterance.CallIDEQ(callID)).
		Order(ent.Desc(utterance.FieldEndMs)).
		First(ctx)
	if ent.IsNotFound(err) {
		return -GapMS, nil
	}
	if err != nil {
		return 0, fmt.Errorf("utterance: query last end_ms: %w", err)
	}
	return last.EndMs, nil
}

// EstimateDurationMS approximates playback duration from text length, the
// same heuristic the sine-tone TTS mock applies to synthesized audio.
func EstimateDurationMS(text string) int {
	d := len(text) * 15
	if d < 1 {
		d = 1
	}
	return d
}
