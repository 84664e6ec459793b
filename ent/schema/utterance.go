package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Utterance holds the schema definition for the Utterance entity — one
// speech segment belonging to a call. Timestamps are monotonic per call:
// next_start_ms = max(end_ms) + 100.
type Utterance struct {
	ent.Schema
}

// Fields of the Utterance.
func (Utterance) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("utterance_id").
			Unique().
			Immutable(),
		field.String("call_id").
			Immutable(),
		field.Enum("speaker").
			Values("caller", "agent", "system").
			Immutable(),
		field.Text("text"),
		field.Int("start_ms"),
		field.Int("end_ms"),
		field.Float("confidence").
			Optional().
			Nillable(),
	}
}

// Edges of the Utterance.
func (Utterance) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("call", Call.Type).
			Ref("utterances").
			Field("call_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the Utterance.
func (Utterance) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("call_id", "end_ms"),
	}
}

// Annotations for PostgreSQL-specific features.
func (Utterance) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}
