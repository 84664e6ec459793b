package database

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql"
)

// CreateGINIndexes creates GIN indexes not expressible through ent schema
// annotations: JSONB containment on call_events.payload (operational
// search/debugging) and full-text search on utterances.text (transcript
// search).
func CreateGINIndexes(ctx context.Context, driver *sql.Driver) error {
	db := driver.DB()

	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_call_events_payload_gin
		ON call_events USING gin(payload)`)
	if err != nil {
		return fmt.Errorf("failed to create call_events payload GIN index: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_utterances_text_gin
		ON utterances USING gin(to_tsvector('english', text))`)
	if err != nil {
		return fmt.Errorf("failed to create utterances text GIN index: %w", err)
	}

	return nil
}
