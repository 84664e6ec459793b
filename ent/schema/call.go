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

// Call holds the schema definition for the Call entity — one inbound
// telephone interaction identified by the carrier call SID.
type Call struct {
	ent.Schema
}

// Fields of the Call.
func (Call) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("call_id").
			Unique().
			Immutable(),
		field.String("tenant_id").
			Immutable(),
		field.String("agent_id").
			Immutable(),
		field.String("carrier_call_sid").
			Unique().
			Comment("Carrier-assigned call SID (e.g. Twilio CallSid)"),
		field.String("room").
			Comment("Media room name"),
		field.Time("started_at").
			Default(time.Now),
		field.Time("ended_at").
			Optional().
			Nillable(),
		field.Enum("outcome").
			Values("resolved", "handoff").
			Optional().
			Nillable(),
		field.String("handoff_reason").
			Optional().
			Nillable(),
		field.Bool("legal_hold").
			Default(false).
			Comment("When true, the call and its events are never deleted by retention jobs"),
	}
}

// Edges of the Call.
func (Call) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("events", CallEvent.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("dispatches", RuntimeDispatch.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("utterances", Utterance.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("tool_executions", ToolExecution.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("metric", CallMetric.Type).
			Unique().
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("deletion_job", DeletionJob.Type).
			Unique().
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Call.
func (Call) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("tenant_id"),
		index.Fields("agent_id"),
		index.Fields("started_at"),
	}
}

// Annotations for PostgreSQL-specific features.
func (Call) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}
