package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ToolExecution holds the schema definition for the ToolExecution entity —
// one invocation of an external tool by the tool command layer.
type ToolExecution struct {
	ent.Schema
}

// Fields of the ToolExecution.
func (ToolExecution) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("tool_execution_id").
			Unique().
			Immutable(),
		field.String("call_id").
			Immutable(),
		field.String("tool_id").
			Immutable(),
		field.JSON("request", map[string]any{}).
			Optional(),
		field.JSON("response", map[string]any{}).
			Optional(),
		field.Enum("status").
			Values("success", "error", "timeout"),
		field.Int("latency_ms"),
		field.String("error_code").
			Optional().
			Nillable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the ToolExecution.
func (ToolExecution) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("call", Call.Type).
			Ref("tool_executions").
			Field("call_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the ToolExecution.
func (ToolExecution) Indexes() []ent.Index {
	return []ent.Index{
		// Per-call rate limit: count executions in the last 60s for a call.
		index.Fields("call_id", "created_at"),
	}
}

// Annotations for PostgreSQL-specific features.
func (ToolExecution) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}
