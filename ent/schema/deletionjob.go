package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// DeletionJob holds the schema definition for the DeletionJob entity — the
// retention loop's durable record of a call scheduled for hard deletion.
// Every ended call is scheduled; when the job runs, a call with
// legal_hold=true is left in place and the job is marked executed.
type DeletionJob struct {
	ent.Schema
}

// Fields of the DeletionJob.
func (DeletionJob) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("deletion_job_id").
			Unique().
			Immutable(),
		field.String("call_id").
			Immutable(),
		field.String("tenant_id").
			Immutable(),
		field.Time("scheduled_for").
			Comment("Rescheduled forward on a repeat call_ended event"),
		field.Time("executed_at").
			Optional().
			Nillable(),
	}
}

// Edges of the DeletionJob.
func (DeletionJob) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("call", Call.Type).
			Ref("deletion_job").
			Field("call_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the DeletionJob.
func (DeletionJob) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("scheduled_for"),
	}
}

// Annotations for PostgreSQL-specific features.
func (DeletionJob) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}
