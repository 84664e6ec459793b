package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// DailyKPI holds the schema definition for the DailyKPI entity — one row per
// tenant per UTC day, produced by the nightly rollup, scheduled by gronx
// against a daily cron expression.
type DailyKPI struct {
	ent.Schema
}

// Fields of the DailyKPI.
func (DailyKPI) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("daily_kpi_id").
			Unique().
			Immutable(),
		field.String("tenant_id").
			Immutable(),
		field.Time("day").
			Immutable().
			Comment("Truncated to UTC midnight"),
		field.Int("calls_handled").
			Default(0),
		field.Int("calls_handed_off").
			Default(0),
		field.Int("avg_turn_latency_ms").
			Default(0),
		field.Float("tool_error_rate").
			Default(0),
		field.Time("computed_at").
			Default(time.Now),
	}
}

// Indexes of the DailyKPI.
func (DailyKPI) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("tenant_id", "day").
			Unique(),
	}
}

// Annotations for PostgreSQL-specific features.
func (DailyKPI) Annotations() []schema.Annotation {
	return []schema.Annotation{}
}
