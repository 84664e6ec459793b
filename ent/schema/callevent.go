package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// CallEvent holds the schema definition for the CallEvent entity — an
// immutable, time-ordered record of one step in a call's lifecycle.
// (type, processed_at is null) defines the claimable backlog consumed by
// the handoff worker, dispatch claimer, and launcher.
type CallEvent struct {
	ent.Schema
}

// Fields of the CallEvent.
func (CallEvent) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("event_id").
			Unique().
			Immutable(),
		field.String("call_id").
			Immutable(),
		field.Time("timestamp").
			Default(time.Now).
			Immutable(),
		field.String("type").
			Immutable().
			Comment("e.g. handoff_requested, handoff_dispatched, dispatch_claimed"),
		field.JSON("payload", map[string]any{}).
			Immutable().
			Comment("Opaque JSON payload; never contains a raw join-token"),
		field.Int("processing_attempts").
			Default(0),
		field.Time("processed_at").
			Optional().
			Nillable(),
		field.String("last_error").
			Optional().
			Nillable(),
	}
}

// Edges of the CallEvent.
func (CallEvent) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("call", Call.Type).
			Ref("events").
			Field("call_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the CallEvent.
func (CallEvent) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("call_id", "type"),
		// Backlog scan: claim() selects by type where processed_at is null,
		// ordered by timestamp. Partial index keeps the backlog scan cheap
		// once most events are terminal.
		index.Fields("type", "timestamp").
			Annotations(entsql.IndexWhere("processed_at IS NULL")),
	}
}

// Annotations for PostgreSQL-specific features.
func (CallEvent) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}
