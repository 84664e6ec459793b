package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// AgentTool holds the schema definition for the AgentTool entity — the join
// row binding a published AgentVersion to a Tool it is allowed to call.
type AgentTool struct {
	ent.Schema
}

// Fields of the AgentTool.
func (AgentTool) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("agent_tool_id").
			Unique().
			Immutable(),
		field.String("agent_version_id").
			Immutable(),
		field.String("tool_id").
			Immutable(),
	}
}

// Edges of the AgentTool.
func (AgentTool) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("agent_version", AgentVersion.Type).
			Ref("tools").
			Field("agent_version_id").
			Unique().
			Required().
			Immutable(),
		edge.From("tool", Tool.Type).
			Ref("agent_tools").
			Field("tool_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the AgentTool.
func (AgentTool) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("agent_version_id", "tool_id").
			Unique(),
	}
}

// Annotations for PostgreSQL-specific features.
func (AgentTool) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}
