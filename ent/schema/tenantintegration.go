package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// TenantIntegration holds the schema definition for the TenantIntegration
// entity — a tenant's stored credential for an outbound tool call. The
// secret is never stored in plaintext; see the secrets codec envelope
// format.
type TenantIntegration struct {
	ent.Schema
}

// Fields of the TenantIntegration.
func (TenantIntegration) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("tenant_integration_id").
			Unique().
			Immutable(),
		field.String("tenant_id").
			Immutable(),
		field.String("name"),
		field.Enum("auth_kind").
			Values("api_key", "bearer"),
		field.String("encrypted_secret").
			Sensitive().
			Comment("AES-256-GCM envelope: v1:iv_b64:tag_b64:ciphertext_b64"),
		field.String("base_url").
			Optional(),
	}
}

// Edges of the TenantIntegration.
func (TenantIntegration) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("endpoints", ToolEndpoint.Type).
			Annotations(entsql.OnDelete(entsql.SetNull)),
	}
}

// Indexes of the TenantIntegration.
func (TenantIntegration) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("tenant_id", "name").
			Unique(),
	}
}

// Annotations for PostgreSQL-specific features.
func (TenantIntegration) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}
