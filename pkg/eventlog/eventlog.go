// Package eventlog implements the append-only call_events table: atomic
// append, skip-locked claim, and the processed/failed terminal transitions.
package eventlog

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/codeready-toolchain/voicerelay/ent"
	"github.com/codeready-toolchain/voicerelay/ent/callevent"
	"github.com/google/uuid"
)

// MaxAttemptsDefault is the default processing_attempts ceiling before a
// worker finalizes a backlog entry without a successful side effect.
const MaxAttemptsDefault = 5

// Log is a thin wrapper around the ent client exposing the event-log
// operations as a cohesive unit.
type Log struct {
	client *ent.Client
}

// New builds a Log over an ent client.
func New(client *ent.Client) *Log {
	return &Log{client: client}
}

// Append atomically inserts a new, unprocessed event.
func (l *Log) Append(ctx context.Context, callID, eventType string, payload map[string]any) (*ent.CallEvent, error) {
	evt, err := l.client.CallEvent.Create().
		SetID(uuid.NewString()).
		SetCallID(callID).
		SetType(eventType).
		SetPayload(payload).
		SetTimestamp(time.Now()).
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("eventlog: append %s for call %s: %w", eventType, callID, err)
	}
	return evt, nil
}

// Claim selects up to limit unprocessed rows of the given type, ordered by
// timestamp ascending, using FOR UPDATE SKIP LOCKED so concurrent pollers
// never claim the same row, and increments processing_attempts on each.
func (l *Log) Claim(ctx context.Context, eventType string, limit int) ([]*ent.CallEvent, error) {
	tx, err := l.client.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("eventlog: begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.CallEvent.Query().
		Where(
			callevent.TypeEQ(eventType),
			callevent.ProcessedAtIsNil(),
		).
		Order(ent.Asc(callevent.FieldTimestamp)).
		Limit(limit).
		ForUpdate(entsql.WithLockAction(entsql.SkipLocked)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("eventlog: claim query: %w", err)
	}

	claimed := make([]*ent.CallEvent, 0, len(rows))
	for _, row := range rows {
		updated, err := row.Update().
			AddProcessingAttempts(1).
			Save(ctx)
		if err != nil {
			return nil, fmt.Errorf("eventlog: increment attempts for %s: %w", row.ID, err)
		}
		claimed = append(claimed, updated)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("eventlog: commit claim: %w", err)
	}
	return claimed, nil
}

// MarkProcessed finalizes a successfully handled event.
func (l *Log) MarkProcessed(ctx context.Context, eventID string) error {
	now := time.Now()
	err := l.client.CallEvent.UpdateOneID(eventID).
		SetProcessedAt(now).
		ClearLastError().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("eventlog: mark processed %s: %w", eventID, err)
	}
	return nil
}

// MarkFailed records an error; when finalize is true, it also terminates the
// event so it is never re-delivered (used once processing_attempts exceeds
// the configured ceiling).
func (l *Log) MarkFailed(ctx context.Context, eventID, message string, finalize bool) error {
	update := l.client.CallEvent.UpdateOneID(eventID).SetLastError(message)
	if finalize {
		update = update.SetProcessedAt(time.Now())
	}
	if err := update.Exec(ctx); err != nil {
		return fmt.Errorf("eventlog: mark failed %s: %w", eventID, err)
	}
	return nil
}

// ShouldFinalize reports whether a backlog row has exhausted its retry
// budget and must be finalized on its next failure.
func ShouldFinalize(attempts, maxAttempts int) bool {
	if maxAttempts <= 0 {
		maxAttempts = MaxAttemptsDefault
	}
	return attempts >= maxAttempts
}
