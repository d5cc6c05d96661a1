// Package exploration implements the third pipeline stage: running the
// external symbolic-execution engine against the linked module under a hard
// resource budget and collecting its streamed per-path reports.
package exploration

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/P4-Verification-Tools/assert-p4-16/internal/config"
	"github.com/P4-Verification-Tools/assert-p4-16/internal/fault"
	"github.com/P4-Verification-Tools/assert-p4-16/internal/lowering"
)

// Budget caps an exploration run. Both limits are hard caps; whichever is
// reached first stops the engine. A zero field means that cap is unset, but
// at least one cap must be set.
type Budget struct {
	TimeLimit time.Duration
	MaxPaths  int
}

func (b Budget) Validate() error {
	if b.TimeLimit < 0 {
		return fault.New(fault.BudgetMisconfigured, "negative time limit %s", b.TimeLimit)
	}
	if b.MaxPaths < 0 {
		return fault.New(fault.BudgetMisconfigured, "negative path limit %d", b.MaxPaths)
	}
	if b.TimeLimit == 0 && b.MaxPaths == 0 {
		return fault.New(fault.BudgetMisconfigured, "exploration budget is unbounded, set a time or path limit")
	}
	return nil
}

func (b Budget) String() string {
	var parts []string
	if b.TimeLimit > 0 {
		parts = append(parts, "time="+b.TimeLimit.String())
	}
	if b.MaxPaths > 0 {
		parts = append(parts, "paths="+strconv.Itoa(b.MaxPaths))
	}
	return strings.Join(parts, " ")
}

// Explore runs the engine subprocess against the module, consuming its
// report stream incrementally so a run killed by its time budget still
// yields every report produced up to that point. The engine's internal
// scheduling is opaque here; this driver only spawns, streams and stops.
func Explore(ctx context.Context, cfg *config.Config, module *lowering.Module, budget Budget) ([]Report, error) {
	if err := budget.Validate(); err != nil {
		return nil, err
	}

	var cancel context.CancelFunc
	if budget.TimeLimit > 0 {
		ctx, cancel = context.WithTimeout(ctx, budget.TimeLimit)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	argv := config.Argv(cfg.Engine, map[string][]string{
		"{module}": {module.Path},
	})
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	// Forces the report pipe closed shortly after the engine dies, even if
	// an engine child process still holds the write end.
	cmd.WaitDelay = 2 * time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fault.New(fault.Internal, "engine stdout pipe").WithCause(err)
	}

	log.Infof("exploring %s, budget %s", module.Path, budget)
	if err := cmd.Start(); err != nil {
		return nil, fault.New(fault.EngineCrashed, "engine %s failed to start", argv[0]).WithCause(err)
	}

	var (
		reports    []Report
		pathCapped bool
	)
	decodeErr := decodeReports(stdout, func(rep Report) bool {
		reports = append(reports, rep)
		if budget.MaxPaths > 0 && len(reports) >= budget.MaxPaths {
			pathCapped = true
			cancel() // budget-imposed stop, reports so far remain valid
			return false
		}
		return true
	})
	if decodeErr != nil {
		// a broken stream means the engine can't be trusted to terminate
		cancel()
	}

	waitErr := cmd.Wait()
	budgetStop := pathCapped || ctx.Err() == context.DeadlineExceeded

	if decodeErr != nil && !budgetStop {
		return nil, fault.New(fault.EngineCrashed, "engine report stream violated the wrapper contract").
			WithCause(decodeErr).WithDiagnostic(stderr.String())
	}
	if waitErr != nil && !budgetStop {
		return nil, fault.New(fault.EngineCrashed, "engine %s terminated abnormally", argv[0]).
			WithCause(waitErr).WithDiagnostic(stderr.String())
	}

	if budgetStop {
		log.Infof("exploration stopped at budget with %d reports", len(reports))
	} else {
		log.Infof("exploration terminated naturally with %d reports", len(reports))
	}
	return reports, nil
}
