// Package retention computes per-call and per-tenant rollups and enforces
// the call-data retention window: CallMetric at call-end, a nightly
// DailyKPI rollup, and a deletion loop that purges calls past their
// retention deadline unless placed under legal hold.
package retention

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/voicerelay/ent"
	"github.com/codeready-toolchain/voicerelay/ent/callevent"
	"github.com/codeready-toolchain/voicerelay/ent/callmetric"
	"github.com/codeready-toolchain/voicerelay/ent/toolexecution"
	"github.com/codeready-toolchain/voicerelay/ent/utterance"
	"github.com/google/uuid"
)

// ComputeCallMetric aggregates a finished call's events, utterances, and
// tool executions into a single CallMetric row. It is idempotent: calling
// it twice for the same call replaces the prior row's counters.
func ComputeCallMetric(ctx context.Context, client *ent.Client, callID string) (*ent.CallMetric, error) {
	turnCount, err := client.CallEvent.Query().
		Where(callevent.CallIDEQ(callID), callevent.TypeEQ("user_turn_completed")).
		Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("retention: count turns: %w", err)
	}

	totalExecutions, err := client.ToolExecution.Query().
		Where(toolexecution.CallIDEQ(callID)).
		Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("retention: count tool executions: %w", err)
	}

	totalErrors, err := client.ToolExecution.Query().
		Where(toolexecution.CallIDEQ(callID), toolexecution.StatusNEQ("success")).
		Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("retention: count tool errors: %w", err)
	}

	utterances, err := client.Utterance.Query().
		Where(utterance.CallIDEQ(callID)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("retention: query utterances: %w", err)
	}
	totalUtteranceMS := 0
	for _, u := range utterances {
		totalUtteranceMS += u.EndMs - u.StartMs
	}

	if _, err := client.CallMetric.Delete().
		Where(callmetric.CallIDEQ(callID)).
		Exec(ctx); err != nil {
		return nil, fmt.Errorf("retention: clear prior call metric: %w", err)
	}

	metric, err := client.CallMetric.Create().
		SetID(uuid.NewString()).
		SetCallID(callID).
		SetTurnCount(turnCount).
		SetTotalToolExecutions(totalExecutions).
		SetTotalToolErrors(totalErrors).
		SetTotalUtteranceMs(totalUtteranceMS).
		Save(ctx)
	if err != nil {
		return nil, fmt.Errorf("retention: create call metric: %w", err)
	}
	return metric, nil
}
