package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// RuntimeDispatch holds the schema definition for the RuntimeDispatch entity —
// the one-time bearer of a room-join secret. A dispatch is minted by the
// handoff worker and redeemed exactly once by the dispatch claimer.
type RuntimeDispatch struct {
	ent.Schema
}

// Fields of the RuntimeDispatch.
func (RuntimeDispatch) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("dispatch_id").
			Unique().
			Immutable(),
		field.String("call_id").
			Immutable(),
		field.String("trace_id").
			Immutable().
			Comment("UUID threaded through all events of one call"),
		field.String("tenant_id").
			Immutable(),
		field.String("agent_id").
			Immutable(),
		field.String("carrier_call_sid").
			Immutable(),
		field.String("room"),
		field.String("join_token").
			Optional().
			Comment("Cleared (set to empty string) the instant the dispatch is claimed"),
		field.Enum("status").
			Values("pending", "claimed", "expired").
			Default("pending"),
		field.Time("expires_at"),
		field.Time("claimed_at").
			Optional().
			Nillable(),
	}
}

// Edges of the RuntimeDispatch.
func (RuntimeDispatch) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("call", Call.Type).
			Ref("dispatches").
			Field("call_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the RuntimeDispatch.
func (RuntimeDispatch) Indexes() []ent.Index {
	return []ent.Index{
		// Re-emission of a handoff for the same call+trace must resolve to the
		// same row: the handoff worker upserts on (call_id, trace_id).
		index.Fields("call_id", "trace_id").
			Unique(),
		// Claim query filters on status=pending AND expires_at>now.
		index.Fields("status", "expires_at"),
	}
}

// Annotations for PostgreSQL-specific features.
func (RuntimeDispatch) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}
