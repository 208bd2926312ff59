package provisioning

import (
	"context"

	"go.uber.org/zap"

	"mediasite-provisioning/internal/concurrency"
)

// Outcome is the result of one course in a batch.
type Outcome struct {
	Request Request
	Result  *Result
	Err     error
}

// RunBatch provisions each request on its own worker. Runs for different
// courses share nothing but the host's root folder cache, so a failure of
// one course does not stop the others.
func (p *Provisioner) RunBatch(ctx context.Context, reqs []Request, workers int) []Outcome {
	outcomes, _ := concurrency.ProcessParallel(ctx, reqs, concurrency.ParallelOptions{MaxWorkers: workers},
		func(ctx context.Context, _ int, req Request) (Outcome, error) {
			res, err := p.Run(ctx, req)
			return Outcome{Request: req, Result: res, Err: err}, nil
		})

	failed := 0
	for i := range outcomes {
		if outcomes[i].Result == nil {
			outcomes[i] = Outcome{Request: reqs[i], Result: &Result{CourseID: reqs[i].CourseID, State: Failed}, Err: ctx.Err()}
		}
		if outcomes[i].Err != nil {
			failed++
		}
	}
	p.log.Info("batch finished", zap.Int("courses", len(reqs)), zap.Int("failed", failed))
	return outcomes
}
