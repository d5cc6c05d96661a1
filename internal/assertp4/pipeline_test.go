package assertp4

import (
	"context"
	"fmt"
	"os"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/P4-Verification-Tools/assert-p4-16/internal/config"
	"github.com/P4-Verification-Tools/assert-p4-16/internal/exploration"
	"github.com/P4-Verification-Tools/assert-p4-16/internal/fault"
	"github.com/P4-Verification-Tools/assert-p4-16/internal/verdict"
)

const oneAssertionP4 = `control ingress(inout headers hdr) {
    apply {
        @assert(hdr.meta.index < 16)
        hdr.meta.index = hdr.meta.index + 1;
    }
}
`

const oneTrapMap = `{"version":1,"traps":{"trap_0":{"assertion":"a1","file":"prog.p4","line":3}}}`

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	file := path.Join(dir, name)
	require.NoError(t, os.WriteFile(file, []byte("#!/bin/sh\n"+body), 0755))
	return file
}

// testRunner wires stub collaborators for a single-assertion program. The
// engine stub's report lines are the test's knob.
func testRunner(t *testing.T, engineBody string) (*Runner, string, string) {
	t.Helper()
	dir := t.TempDir()

	srcFile := path.Join(dir, "prog.p4")
	require.NoError(t, os.WriteFile(srcFile, []byte(oneAssertionP4), 0644))

	compiler := writeScript(t, dir, "p4c-stub",
		fmt.Sprintf("echo 'lowering prog.p4'\necho module > \"$2\"\ncat > \"$3\" <<'EOF'\n%s\nEOF\n", oneTrapMap))
	linker := writeScript(t, dir, "link-stub", "cat \"$1\" \"$2\" > \"$3\"\n")
	engine := writeScript(t, dir, "engine-stub", engineBody)
	runtime := writeScript(t, dir, "assert_runtime.bc", "")

	cfg := config.Default()
	cfg.Compiler = compiler + " {source} {output} {trapmap}"
	cfg.Linker = linker + " {inputs} {output}"
	cfg.Engine = engine + " {module}"
	cfg.Runtime = runtime

	outFile := path.Join(dir, "verdict.json")
	return &Runner{
		Config:     cfg,
		Budget:     exploration.Budget{TimeLimit: 10 * time.Second},
		OutputPath: outFile,
	}, srcFile, outFile
}

func Test_RunPass(t *testing.T) {
	runner, srcFile, outFile := testRunner(t, `
echo '{"status":"normal","covered":["trap_0"]}'
`)
	v, err := runner.Run(context.Background(), srcFile)
	require.NoError(t, err)

	assert.Equal(t, verdict.ResultPass, v.Result)
	assert.Equal(t, verdict.OutcomeNotViolated, v.Outcomes["a1"].Status)
	assert.FileExists(t, outFile)
}

// assertion "index < 16" violable from unconstrained input: verdict fail
// with a counterexample where the index is out of range
func Test_RunViolation(t *testing.T) {
	runner, srcFile, _ := testRunner(t, `
echo '{"status":"trap","trap":"trap_0","input":{"hdr.meta.index":"0x20"},"covered":["trap_0"]}'
echo '{"status":"normal","covered":["trap_0"]}'
`)
	v, err := runner.Run(context.Background(), srcFile)
	require.NoError(t, err)

	assert.Equal(t, verdict.ResultFail, v.Result)
	out := v.Outcomes["a1"]
	assert.Equal(t, verdict.OutcomeViolated, out.Status)
	assert.Equal(t, "0x20", out.Counterexample["hdr.meta.index"])
	assert.Equal(t, 2, v.Run.PathsExplored)
}

func Test_RunUnreachableAssertion(t *testing.T) {
	runner, srcFile, _ := testRunner(t, `
echo '{"status":"normal"}'
`)
	v, err := runner.Run(context.Background(), srcFile)
	require.NoError(t, err)

	assert.Equal(t, verdict.ResultPass, v.Result)
	assert.Equal(t, verdict.OutcomeUnreachable, v.Outcomes["a1"].Status)
}

func Test_RunCompilationErrorWritesNoArtifact(t *testing.T) {
	runner, srcFile, outFile := testRunner(t, "exit 0\n")
	dir := path.Dir(srcFile)
	// replace the compiler with one that rejects the program
	runner.Config.Compiler = writeScript(t, dir, "p4c-reject",
		"echo 'prog.p4:4: error: undeclared hdr' >&2\nexit 1\n") + " {source} {output} {trapmap}"

	_, err := runner.Run(context.Background(), srcFile)
	e, ok := fault.AsError(err)
	require.True(t, ok)
	assert.Equal(t, fault.CompilationError, e.Kind)
	assert.Contains(t, err.Error(), "undeclared hdr")
	// a broken run never leaves a misleading verdict behind
	assert.NoFileExists(t, outFile)
}

func Test_RunBudgetMisconfigured(t *testing.T) {
	runner, srcFile, outFile := testRunner(t, "exit 0\n")
	runner.Budget = exploration.Budget{}

	_, err := runner.Run(context.Background(), srcFile)
	e, ok := fault.AsError(err)
	require.True(t, ok)
	assert.Equal(t, fault.BudgetMisconfigured, e.Kind)
	assert.NoFileExists(t, outFile)
}

// same source, same budget, deterministic engine: same verdict both times
func Test_RunIdempotent(t *testing.T) {
	runner, srcFile, _ := testRunner(t, `
echo '{"status":"trap","trap":"trap_0","input":{"hdr.meta.index":"0x20"},"covered":["trap_0"]}'
`)
	first, err := runner.Run(context.Background(), srcFile)
	require.NoError(t, err)
	second, err := runner.Run(context.Background(), srcFile)
	require.NoError(t, err)

	assert.Equal(t, first.Result, second.Result)
	for id, out := range first.Outcomes {
		assert.Equal(t, out.Status, second.Outcomes[id].Status, "assertion %s", id)
	}
}

func Test_RunDetailsCarryToolOutput(t *testing.T) {
	runner, srcFile, _ := testRunner(t, `
echo '{"status":"normal","covered":["trap_0"]}'
`)
	v, err := runner.Run(context.Background(), srcFile)
	require.NoError(t, err)
	assert.Contains(t, v.Run.Details, "=== P4 compiler ===")
}
