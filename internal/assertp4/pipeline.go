// Package assertp4 orchestrates the verification pipeline: source
// preparation, lowering, symbolic exploration and verdict synthesis, in
// that order. Each stage's output is a hard precondition for the next, so
// the first stage error aborts the run.
package assertp4

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/P4-Verification-Tools/assert-p4-16/internal/config"
	"github.com/P4-Verification-Tools/assert-p4-16/internal/exploration"
	"github.com/P4-Verification-Tools/assert-p4-16/internal/lowering"
	"github.com/P4-Verification-Tools/assert-p4-16/internal/source"
	"github.com/P4-Verification-Tools/assert-p4-16/internal/verdict"
)

type Runner struct {
	Config *config.Config
	Budget exploration.Budget
	// Retain keeps the working directory and module artifacts on disk for
	// debugging instead of deleting them at end of run.
	Retain bool
	// OutputPath receives the verdict artifact; "-" or empty means stdout.
	OutputPath string
	RulesPath  string
}

// Run executes the whole pipeline for one P4 source file. The returned
// verdict is nil whenever an error is returned: a run that breaks before
// synthesis never writes a misleading artifact. Concurrent Runs are safe,
// all mutable state lives in the per-run working directory.
func (r *Runner) Run(ctx context.Context, sourcePath string) (*verdict.Verdict, error) {
	if err := r.Budget.Validate(); err != nil {
		return nil, err
	}

	startTime := time.Now()

	prep, err := source.Prepare(sourcePath, r.RulesPath)
	if err != nil {
		return nil, err
	}
	if r.Retain {
		log.Infof("retaining workdir %s", prep.WorkDir)
	} else {
		defer prep.Cleanup()
	}

	module, err := lowering.Lower(ctx, r.Config, prep)
	if err != nil {
		return nil, err
	}
	defer module.Release(r.Retain)

	reports, err := exploration.Explore(ctx, r.Config, module, r.Budget)
	if err != nil {
		return nil, err
	}

	v := verdict.Synthesize(prep, module.TrapMap, reports, verdict.Meta{
		RunID:     prep.RunID,
		Source:    sourcePath,
		Budget:    r.Budget.String(),
		ElapsedMS: time.Since(startTime).Milliseconds(),
		Details:   runLog(module),
	})

	violations := 0
	for _, out := range v.Outcomes {
		if out.Status == verdict.OutcomeViolated {
			violations++
		}
	}
	log.Infof("verdict %s: %d/%d assertions violated, %d paths, %dms",
		v.Result, violations, len(prep.Assertions), v.Run.PathsExplored, v.Run.ElapsedMS)

	if err := v.WriteFile(r.OutputPath); err != nil {
		return nil, err
	}
	return v, nil
}

// runLog concatenates the collaborators' verbatim output into the verdict's
// details section, one tagged block per tool.
func runLog(module *lowering.Module) string {
	var b strings.Builder
	for _, sec := range []struct{ name, text string }{
		{"P4 compiler", module.CompilerOutput},
		{"linker", module.LinkerOutput},
	} {
		text := strings.TrimSpace(sec.text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "=== %s ===\n%s\n", sec.name, text)
	}
	return strings.TrimRight(b.String(), "\n")
}
