package voice

import "context"

// TranscriptEvent is one STT result.
type TranscriptEvent struct {
	Text       string
	IsFinal    bool
	Confidence float64
	Provider   string
}

// STT is the speech-to-text adapter contract: a session
// opens one socket, streams inbound frames, and emits transcript events.
// Only is_final transcripts drive a turn; interim transcripts are observed
// only.
type STT interface {
	Start(ctx context.Context) error
	IngestAudio(frame []int16) error
	Events() <-chan TranscriptEvent
	Stop() error
}

// AudioPacket is one synthesized or decoded PCM payload.
type AudioPacket struct {
	Samples    []int16
	SampleRate int
}

// DurationMS is the packet's playback duration in milliseconds.
func (p AudioPacket) DurationMS() int {
	if p.SampleRate <= 0 {
		return 0
	}
	return int(float64(len(p.Samples)) / float64(p.SampleRate) * 1000)
}

// TTS is the text-to-speech adapter contract.
type TTS interface {
	Synthesize(ctx context.Context, text string, sampleRate int) (AudioPacket, error)
}

// Transport is the media-room binding: publish agent audio, subscribe to
// caller audio, and flush playback on barge-in.
type Transport interface {
	Connect(ctx context.Context, joinToken string) error
	PublishAudio(packet AudioPacket) error
	InterruptPlayback() error
	Disconnect() error
}
