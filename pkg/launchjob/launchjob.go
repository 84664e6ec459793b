// Package launchjob implements the RuntimeLaunchJob durable queue: one row
// per dispatch, claimed with skip-locked selection by the launcher and
// re-queued (reset to pending, attempts=0) on re-emission.
package launchjob

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/codeready-toolchain/voicerelay/ent"
	"github.com/codeready-toolchain/voicerelay/ent/runtimelaunchjob"
	"github.com/google/uuid"
)

// Store wraps the ent client with the launch-job operations.
type Store struct {
	client *ent.Client
}

// New builds a Store over an ent client.
func New(client *ent.Client) *Store {
	return &Store{client: client}
}

// UpsertInput mirrors the fields copied from a claimed dispatch into its
// launch job.
type UpsertInput struct {
	DispatchID     string
	CallID         string
	TenantID       string
	AgentID        string
	TraceID        string
	Room           string
	CarrierCallSID string
	ConnectorURL   string
	JoinToken      string
}

// Upsert inserts the launch job for a dispatch, or resets an existing one
// (from a prior handoff re-emission) back to pending with attempts=0.
func (s *Store) Upsert(ctx context.Context, in UpsertInput) (*ent.RuntimeLaunchJob, error) {
	existing, err := s.client.RuntimeLaunchJob.Query().
		Where(runtimelaunchjob.DispatchIDEQ(in.DispatchID)).
		Only(ctx)

	switch {
	case ent.IsNotFound(err):
		job, err := s.client.RuntimeLaunchJob.Create().
			SetID(uuid.NewString()).
			SetCreatedAt(time.Now()).
			SetDispatchID(in.DispatchID).
			SetCallID(in.CallID).
			SetTenantID(in.TenantID).
			SetAgentID(in.AgentID).
			SetTraceID(in.TraceID).
			SetRoom(in.Room).
			SetCarrierCallSid(in.CarrierCallSID).
			SetConnectorURL(in.ConnectorURL).
			SetJoinToken(in.JoinToken).
			SetStatus(runtimelaunchjob.StatusPending).
			SetAttempts(0).
			Save(ctx)
		if err != nil {
			return nil, fmt.Errorf("launchjob: create: %w", err)
		}
		return job, nil
	case err != nil:
		return nil, fmt.Errorf("launchjob: query existing: %w", err)
	default:
		updated, err := existing.Update().
			SetCreatedAt(time.Now()).
			SetRoom(in.Room).
			SetConnectorURL(in.ConnectorURL).
			SetJoinToken(in.JoinToken).
			SetStatus(runtimelaunchjob.StatusPending).
			SetAttempts(0).
			ClearLastError().
			ClearProcessedAt().
			Save(ctx)
		if err != nil {
			return nil, fmt.Errorf("launchjob: re-queue: %w", err)
		}
		return updated, nil
	}
}

// Claim selects up to limit jobs with status in {pending, failed} and
// attempts below maxAttempts, ordered by creation time (FIFO), using
// FOR UPDATE SKIP LOCKED; each claimed row is flipped to processing with
// attempts incremented and last_error cleared.
func (s *Store) Claim(ctx context.Context, limit, maxAttempts int) ([]*ent.RuntimeLaunchJob, error) {
	tx, err := s.client.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("launchjob: begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.RuntimeLaunchJob.Query().
		Where(
			runtimelaunchjob.StatusIn(runtimelaunchjob.StatusPending, runtimelaunchjob.StatusFailed),
			runtimelaunchjob.AttemptsLT(maxAttempts),
		).
		Order(ent.Asc(runtimelaunchjob.FieldCreatedAt)).
		Limit(limit).
		ForUpdate(entsql.WithLockAction(entsql.SkipLocked)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("launchjob: claim query: %w", err)
	}

	claimed := make([]*ent.RuntimeLaunchJob, 0, len(rows))
	for _, row := range rows {
		updated, err := row.Update().
			SetStatus(runtimelaunchjob.StatusProcessing).
			AddAttempts(1).
			ClearLastError().
			Save(ctx)
		if err != nil {
			return nil, fmt.Errorf("launchjob: claim update %s: %w", row.ID, err)
		}
		claimed = append(claimed, updated)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("launchjob: commit claim: %w", err)
	}
	return claimed, nil
}

// MarkSucceeded finalizes a job after a 2xx connector response.
func (s *Store) MarkSucceeded(ctx context.Context, jobID string) error {
	err := s.client.RuntimeLaunchJob.UpdateOneID(jobID).
		SetStatus(runtimelaunchjob.StatusSucceeded).
		SetProcessedAt(time.Now()).
		SetJoinToken("").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("launchjob: mark succeeded %s: %w", jobID, err)
	}
	return nil
}

// MarkFailed records a non-2xx or network failure. The row re-enters the
// claim set on the next poll until attempts reaches the configured ceiling.
func (s *Store) MarkFailed(ctx context.Context, jobID, message string) error {
	err := s.client.RuntimeLaunchJob.UpdateOneID(jobID).
		SetStatus(runtimelaunchjob.StatusFailed).
		SetLastError(message).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("launchjob: mark failed %s: %w", jobID, err)
	}
	return nil
}
