package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Agent holds the schema definition for the Agent entity — a tenant-owned
// voice agent that a phone number can route to.
type Agent struct {
	ent.Schema
}

// Fields of the Agent.
func (Agent) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("agent_id").
			Unique().
			Immutable(),
		field.String("tenant_id").
			Immutable(),
		field.String("name"),
		field.String("phone_number").
			Optional().
			Nillable().
			Unique(),
		field.Bool("active").
			Default(true),
		field.String("greeting_text").
			Optional().
			Nillable().
			Comment("Stored with the agent; the connector's greeting comes from VOICE_GREETING_TEXT, not this field"),
	}
}

// Edges of the Agent.
func (Agent) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("versions", AgentVersion.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Agent.
func (Agent) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("tenant_id"),
	}
}

// Annotations for PostgreSQL-specific features.
func (Agent) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}
