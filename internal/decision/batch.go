package decision

import (
	"context"

	"github.com/Veraticus/saffron/internal/model"
)

// Decision is one entry of a batch.
type Decision struct {
	TxID   string
	Source model.DecisionSource
	Result model.CategorizationResult
}

// Failure records why one decision of a batch was not applied.
type Failure struct {
	Err  error
	TxID string
}

// BatchOutcome summarizes ApplyBatch.
type BatchOutcome struct {
	Failed     []Failure
	Successful int
}

// ApplyBatch applies decisions in order. A failing decision does not stop the
// batch; once ctx is done the remaining decisions fail with its error.
func (a *Applier) ApplyBatch(ctx context.Context, orgID string, decisions []Decision) BatchOutcome {
	var out BatchOutcome
	for _, d := range decisions {
		if err := ctx.Err(); err != nil {
			out.Failed = append(out.Failed, Failure{TxID: d.TxID, Err: err})
			continue
		}
		if err := a.DecideAndApply(ctx, orgID, d.TxID, d.Result, d.Source); err != nil {
			out.Failed = append(out.Failed, Failure{TxID: d.TxID, Err: err})
			continue
		}
		out.Successful++
	}

	if len(out.Failed) > 0 {
		a.logger.Info("batch applied with failures",
			"org_id", orgID,
			"successful", out.Successful,
			"failed", len(out.Failed))
	}
	return out
}
