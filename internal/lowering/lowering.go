// Package lowering implements the second pipeline stage: driving the
// external P4 compiler and bitcode linker to produce one self-contained,
// instrumented module ready for symbolic exploration.
package lowering

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/P4-Verification-Tools/assert-p4-16/internal/config"
	"github.com/P4-Verification-Tools/assert-p4-16/internal/fault"
	"github.com/P4-Verification-Tools/assert-p4-16/internal/source"
)

// Module is the linked, instrumented executable representation handed to
// the exploration driver, together with its trap-map contract.
type Module struct {
	Path    string
	TrapMap TrapMap

	// CompilerOutput and LinkerOutput hold the collaborators' combined
	// stdout/stderr verbatim for the run log.
	CompilerOutput string
	LinkerOutput   string

	artifacts []string
}

// Release deletes the module's on-disk artifacts unless retention was
// requested for debugging.
func (m *Module) Release(retain bool) {
	if retain {
		return
	}
	for _, p := range m.artifacts {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Errorf("removing artifact %s: %v", p, err)
		}
	}
}

// Lower compiles the prepared source and links the result with the
// assertion-runtime support module. The trap-map bijection is validated
// before linking so a broken instrumentation contract can never reach
// exploration.
func Lower(ctx context.Context, cfg *config.Config, prep *source.Prepared) (*Module, error) {
	base := strings.TrimSuffix(filepath.Base(prep.SourcePath), filepath.Ext(prep.SourcePath))
	loweredPath := filepath.Join(prep.WorkDir, base+".bc")
	trapMapPath := filepath.Join(prep.WorkDir, base+".trapmap.json")
	linkedPath := filepath.Join(prep.WorkDir, base+".linked.bc")

	argv := config.Argv(cfg.Compiler, map[string][]string{
		"{source}":  {prep.SourcePath},
		"{output}":  {loweredPath},
		"{trapmap}": {trapMapPath},
	})
	if prep.RulesPath != "" {
		argv = append(argv, prep.RulesPath)
	}

	log.Infof("compiling %s", prep.SourcePath)
	compilerOut, err := runTool(ctx, cfg.CompileTimeout, prep.WorkDir, argv)
	if err != nil {
		return nil, fault.New(fault.CompilationError, "compiler %s failed", argv[0]).
			WithCause(err).WithDiagnostic(compilerOut)
	}
	if _, err := os.Stat(loweredPath); err != nil {
		return nil, fault.New(fault.CompilationError,
			"compiler exited cleanly but produced no module at %s", loweredPath).
			WithDiagnostic(compilerOut)
	}

	trapMap, err := readTrapMap(trapMapPath)
	if err != nil {
		return nil, err
	}
	if err := validateBijection(prep.Assertions, trapMap); err != nil {
		return nil, err
	}
	log.Infof("lowered %s: %d traps instrumented", base, len(trapMap.Traps))

	argv = config.Argv(cfg.Linker, map[string][]string{
		"{inputs}": {loweredPath, cfg.Runtime},
		"{output}": {linkedPath},
	})
	linkerOut, err := runTool(ctx, cfg.LinkTimeout, prep.WorkDir, argv)
	if err != nil {
		return nil, fault.New(fault.LinkError, "linker %s failed", argv[0]).
			WithCause(err).WithDiagnostic(linkerOut)
	}
	if _, err := os.Stat(linkedPath); err != nil {
		return nil, fault.New(fault.LinkError,
			"linker exited cleanly but produced no module at %s", linkedPath).
			WithDiagnostic(linkerOut)
	}

	return &Module{
		Path:           linkedPath,
		TrapMap:        trapMap,
		CompilerOutput: compilerOut,
		LinkerOutput:   linkerOut,
		artifacts:      []string{loweredPath, trapMapPath, linkedPath},
	}, nil
}

// runTool runs one collaborator subprocess to completion under the given
// timeout and returns its combined output. The output is returned even on
// failure so callers can pass the tool's diagnostics through verbatim.
func runTool(ctx context.Context, timeout time.Duration, dir string, argv []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	// don't hang on output pipes held open by the tool's own children
	cmd.WaitDelay = time.Second
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return string(out), errors.Errorf("timed out after %s", timeout)
	}
	return string(out), err
}
