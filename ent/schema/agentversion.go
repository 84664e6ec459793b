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

// AgentVersion holds the schema definition for the AgentVersion entity.
// A call's active agent version is the one resolved when the tool layer
// checks for a required agent-tool mapping.
type AgentVersion struct {
	ent.Schema
}

// Fields of the AgentVersion.
func (AgentVersion) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("agent_version_id").
			Unique().
			Immutable(),
		field.String("agent_id").
			Immutable(),
		field.Int("version").
			Immutable(),
		field.Bool("published").
			Default(false),
		field.Text("system_prompt").
			Optional(),
		field.Time("published_at").
			Optional().
			Nillable(),
	}
}

// Edges of the AgentVersion.
func (AgentVersion) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("agent", Agent.Type).
			Ref("versions").
			Field("agent_id").
			Unique().
			Required().
			Immutable(),
		edge.To("tools", AgentTool.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the AgentVersion.
func (AgentVersion) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("agent_id", "version").
			Unique(),
		index.Fields("agent_id", "published"),
	}
}

// Annotations for PostgreSQL-specific features.
func (AgentVersion) Annotations() []schema.Annotation {
	_ = time.Now // version metadata kept timestamp-free aside from published_at
	return []schema.Annotation{}
}
