package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
)

// CallMetric holds the schema definition for the CallMetric entity — the
// per-call rollup computed once at call-end by the observability loop.
type CallMetric struct {
	ent.Schema
}

// Fields of the CallMetric.
func (CallMetric) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("call_metric_id").
			Unique().
			Immutable(),
		field.String("call_id").
			Immutable(),
		field.Int("turn_count").
			Default(0),
		field.Int("total_tool_executions").
			Default(0),
		field.Int("total_tool_errors").
			Default(0),
		field.Int("total_utterance_ms").
			Default(0),
		field.Time("computed_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the CallMetric.
func (CallMetric) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("call", Call.Type).
			Ref("metric").
			Field("call_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Annotations for PostgreSQL-specific features.
func (CallMetric) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}
