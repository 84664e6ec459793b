package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
)

// ToolEndpoint holds the schema definition for the ToolEndpoint entity — the
// HTTP binding a Tool is dispatched through, optionally via a tenant
// integration that supplies auth.
type ToolEndpoint struct {
	ent.Schema
}

// Fields of the ToolEndpoint.
func (ToolEndpoint) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("tool_endpoint_id").
			Unique().
			Immutable(),
		field.String("tool_id").
			Immutable(),
		field.String("tenant_integration_id").
			Optional().
			Nillable(),
		field.String("method").
			Default("POST"),
		field.String("url_template").
			Comment("May reference {{.CallID}}, {{.TenantID}} placeholders"),
		field.JSON("header_template", map[string]string{}).
			Optional(),
		field.Int("timeout_ms").
			Default(5000),
		field.Int("max_retries").
			Default(2),
	}
}

// Edges of the ToolEndpoint.
func (ToolEndpoint) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("tool", Tool.Type).
			Ref("endpoint").
			Field("tool_id").
			Unique().
			Required().
			Immutable(),
		edge.From("integration", TenantIntegration.Type).
			Ref("endpoints").
			Field("tenant_integration_id").
			Unique(),
	}
}

// Annotations for PostgreSQL-specific features.
func (ToolEndpoint) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}
