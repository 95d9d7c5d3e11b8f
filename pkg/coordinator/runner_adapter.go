package coordinator

import (
	"context"
	"time"

	"github.com/duplistack/core/pkg/engine"
	"github.com/duplistack/core/pkg/runner"
)

// processRunner adapts *runner.Runner to the Runner interface the
// coordinator consumes, keeping the runner package free of coordinator
// types.
type processRunner struct {
	r *runner.Runner
}

// NewProcessRunner wraps a concrete engine runner for coordinator use.
func NewProcessRunner(r *runner.Runner) Runner {
	return processRunner{r: r}
}

func (p processRunner) Launch(ctx context.Context, inv engine.Invocation) (ProcessHandle, error) {
	h, err := p.r.Launch(ctx, inv)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (p processRunner) Terminate(h ProcessHandle, grace time.Duration) {
	if rh, ok := h.(*runner.Handle); ok {
		p.r.Terminate(rh, grace)
	}
}
