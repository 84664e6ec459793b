package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Tool holds the schema definition for the Tool entity — a tenant-scoped
// callable function exposed to the LLM during a turn.
type Tool struct {
	ent.Schema
}

// Fields of the Tool.
func (Tool) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("tool_id").
			Unique().
			Immutable(),
		field.String("tenant_id").
			Immutable(),
		field.String("name").
			Comment("Function name surfaced to the LLM tool-choice schema"),
		field.Text("description").
			Optional(),
		field.JSON("input_schema", map[string]any{}).
			Comment("validated subset: type/required/properties/enum/minimum/maximum"),
	}
}

// Edges of the Tool.
func (Tool) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("endpoint", ToolEndpoint.Type).
			Unique().
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("agent_tools", AgentTool.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Tool.
func (Tool) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("tenant_id", "name").
			Unique(),
	}
}

// Annotations for PostgreSQL-specific features.
func (Tool) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}
