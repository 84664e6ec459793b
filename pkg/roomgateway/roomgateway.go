// Package roomgateway wraps the external media-room service:
// room creation and join-token minting. The real implementation targets
// LiveKit; mock mode swaps in a deterministic in-memory stub so tests never
// need a live LiveKit server.
package roomgateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
)

// DefaultTokenTTL is the join-token lifetime minted for a handed-off call.
const DefaultTokenTTL = 10 * time.Minute

// TokenInput describes the join token requested for one call.
type TokenInput struct {
	AgentID        string
	Room           string
	TenantID       string
	CarrierCallSID string
	TraceID        string
	TTL            time.Duration
}

// Gateway is the interface the handoff worker and voice session depend on.
type Gateway interface {
	EnsureRoom(ctx context.Context, room string) error
	MintJoinToken(in TokenInput) (string, error)
	URL() string
}

// liveKitGateway talks to a real LiveKit deployment.
type liveKitGateway struct {
	url        string
	apiKey     string
	apiSecret  string
	roomClient *lksdk.RoomServiceClient
}

// New builds a Gateway against a LiveKit server-sdk room-service client.
func New(url, apiKey, apiSecret string) Gateway {
	return &liveKitGateway{
		url:        url,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		roomClient: lksdk.NewRoomServiceClient(url, apiKey, apiSecret),
	}
}

func (g *liveKitGateway) URL() string { return g.url }

// EnsureRoom creates the room if absent. A "room already exists" response
// from the twirp-based room service is treated as success.
func (g *liveKitGateway) EnsureRoom(ctx context.Context, room string) error {
	_, err := g.roomClient.CreateRoom(ctx, &livekit.CreateRoomRequest{
		Name:            room,
		EmptyTimeout:    300,
		MaxParticipants: 2,
	})
	if err != nil {
		if isAlreadyExists(err) {
			return nil
		}
		return fmt.Errorf("roomgateway: create room %s: %w", room, err)
	}
	return nil
}

func isAlreadyExists(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "already_exists") ||
		strings.Contains(strings.ToLower(err.Error()), "already exists")
}

// MintJoinToken mints a signed credential scoped to one room for one agent,
// with tenant/agent/call-sid/trace metadata.
func (g *liveKitGateway) MintJoinToken(in TokenInput) (string, error) {
	ttl := in.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     in.Room,
		CanPublish: boolPtr(true),
		CanSubscribe: boolPtr(true),
	}

	at := auth.NewAccessToken(g.apiKey, g.apiSecret).
		SetIdentity(fmt.Sprintf("agent-%s", in.AgentID)).
		SetVideoGrant(grant).
		SetValidFor(ttl).
		SetMetadata(fmt.Sprintf(`{"tenant_id":%q,"agent_id":%q,"carrier_call_sid":%q,"trace_id":%q}`,
			in.TenantID, in.AgentID, in.CarrierCallSID, in.TraceID))

	token, err := at.ToJWT()
	if err != nil {
		return "", fmt.Errorf("roomgateway: mint token: %w", err)
	}
	return token, nil
}

func boolPtr(b bool) *bool { return &b }

// mockGateway is the deterministic in-memory stub used in mock mode and by
// tests.
type mockGateway struct {
	url string
}

// NewMock builds a Gateway that never contacts a real LiveKit deployment.
func NewMock(url string) Gateway {
	if url == "" {
		url = "wss://mock.livekit.local"
	}
	return &mockGateway{url: url}
}

func (m *mockGateway) URL() string { return m.url }

func (m *mockGateway) EnsureRoom(ctx context.Context, room string) error { return nil }

func (m *mockGateway) MintJoinToken(in TokenInput) (string, error) {
	return fmt.Sprintf("mock-token-%s", uuid.NewString()), nil
}
