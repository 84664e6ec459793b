package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// RuntimeLaunchJob holds the schema definition for the RuntimeLaunchJob
// entity — the launcher's durable work queue row. One row is upserted per
// RuntimeDispatch; re-queuing an existing row resets it to pending with
// attempts=0.
type RuntimeLaunchJob struct {
	ent.Schema
}

// Fields of the RuntimeLaunchJob.
func (RuntimeLaunchJob) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("launch_job_id").
			Unique().
			Immutable(),
		field.Time("created_at").
			Default(time.Now).
			Comment("Reset to now() whenever the job is re-queued"),
		field.String("dispatch_id").
			Immutable(),
		field.String("call_id").
			Immutable(),
		field.String("tenant_id").
			Immutable(),
		field.String("agent_id").
			Immutable(),
		field.String("trace_id").
			Immutable(),
		field.String("room"),
		field.String("carrier_call_sid").
			Immutable(),
		field.String("connector_url").
			Comment("Media room URL the connector joins"),
		field.String("join_token").
			Optional().
			Comment("Cleared on success"),
		field.Enum("status").
			Values("pending", "processing", "failed", "succeeded").
			Default("pending"),
		field.Int("attempts").
			Default(0),
		field.String("last_error").
			Optional().
			Nillable(),
		field.Time("processed_at").
			Optional().
			Nillable(),
	}
}

// Indexes of the RuntimeLaunchJob.
func (RuntimeLaunchJob) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("dispatch_id").
			Unique(),
		// Claim query: status IN (pending, failed) AND attempts < max, ordered
		// by created_at (FIFO).
		index.Fields("status", "created_at"),
	}
}

// Annotations for PostgreSQL-specific features.
func (RuntimeLaunchJob) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}
