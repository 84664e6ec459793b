// Package dispatch implements the RuntimeDispatch store: the one-time
// bearer of a room-join secret, upserted by (call_id, trace_id) and consumed
// through exactly one atomic claim.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/codeready-toolchain/voicerelay/ent"
	"github.com/codeready-toolchain/voicerelay/ent/runtimedispatch"
	"github.com/codeready-toolchain/voicerelay/pkg/apperrors"
	"github.com/google/uuid"
)

// DefaultTTL is the dispatch expiry window from mint to claim deadline.
const DefaultTTL = 10 * time.Minute

// Store wraps the ent client with the dispatch operations.
type Store struct {
	client *ent.Client
}

// New builds a Store over an ent client.
func New(client *ent.Client) *Store {
	return &Store{client: client}
}

// UpsertInput describes a handoff worker's request to (re-)mint a dispatch.
type UpsertInput struct {
	CallID         string
	TraceID        string
	TenantID       string
	AgentID        string
	CarrierCallSID string
	Room           string
	JoinToken      string
	TTL            time.Duration
}

// Upsert creates or re-mints the dispatch row for (call_id, trace_id). A
// re-emission of the same handoff reuses the same row: status resets to
// pending, claimed_at is cleared, and the new token/expiry overwrite the old
// ones.
func (s *Store) Upsert(ctx context.Context, in UpsertInput) (*ent.RuntimeDispatch, error) {
	ttl := in.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	expiresAt := time.Now().Add(ttl)

	existing, err := s.client.RuntimeDispatch.Query().
		Where(
			runtimedispatch.CallIDEQ(in.CallID),
			runtimedispatch.TraceIDEQ(in.TraceID),
		).
		Only(ctx)

	switch {
	case ent.IsNotFound(err):
		created, err := s.client.RuntimeDispatch.Create().
			SetID(uuid.NewString()).
			SetCallID(in.CallID).
			SetTraceID(in.TraceID).
			SetTenantID(in.TenantID).
			SetAgentID(in.AgentID).
			SetCarrierCallSid(in.CarrierCallSID).
			SetRoom(in.Room).
			SetJoinToken(in.JoinToken).
			SetStatus(runtimedispatch.StatusPending).
			SetExpiresAt(expiresAt).
			Save(ctx)
		if err != nil {
			return nil, fmt.Errorf("dispatch: create: %w", err)
		}
		return created, nil
	case err != nil:
		return nil, fmt.Errorf("dispatch: query existing: %w", err)
	default:
		updated, err := existing.Update().
			SetRoom(in.Room).
			SetJoinToken(in.JoinToken).
			SetStatus(runtimedispatch.StatusPending).
			SetExpiresAt(expiresAt).
			ClearClaimedAt().
			Save(ctx)
		if err != nil {
			return nil, fmt.Errorf("dispatch: re-mint: %w", err)
		}
		return updated, nil
	}
}

// Claim atomically redeems a pending, unexpired dispatch: selects it with
// FOR UPDATE SKIP LOCKED, then flips it to claimed and erases the token in
// the same transaction. Exactly one concurrent caller succeeds; the rest
// observe not_found/conflict/gone.
func (s *Store) Claim(ctx context.Context, dispatchID string) (*ent.RuntimeDispatch, error) {
	tx, err := s.client.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispatch: begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row, err := tx.RuntimeDispatch.Query().
		Where(runtimedispatch.IDEQ(dispatchID)).
		ForUpdate(entsql.WithLockAction(entsql.SkipLocked)).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, apperrors.New(apperrors.KindNotFound, "dispatch not found")
		}
		return nil, fmt.Errorf("dispatch: claim query: %w", err)
	}

	if row.Status != runtimedispatch.StatusPending {
		return nil, apperrors.New(apperrors.KindConflict, "dispatch already claimed or expired")
	}
	if !row.ExpiresAt.After(time.Now()) {
		return nil, apperrors.New(apperrors.KindGone, "dispatch expired")
	}

	claimed, err := row.Update().
		SetStatus(runtimedispatch.StatusClaimed).
		SetClaimedAt(time.Now()).
		SetJoinToken("").
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispatch: claim update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("dispatch: commit claim: %w", err)
	}
	return claimed, nil
}

// MarkExpired sweeps dispatches whose expiry has passed and are still
// pending, flipping them to the terminal expired status.
func (s *Store) MarkExpired(ctx context.Context) (int, error) {
	n, err := s.client.RuntimeDispatch.Update().
		Where(
			runtimedispatch.StatusEQ(runtimedispatch.StatusPending),
			runtimedispatch.ExpiresAtLT(time.Now()),
		).
		SetStatus(runtimedispatch.StatusExpired).
		SetJoinToken("").
		Save(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return 0, fmt.Errorf("dispatch: mark expired: %w", err)
	}
	return n, err
}
