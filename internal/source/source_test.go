package source

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/P4-Verification-Tools/assert-p4-16/internal/fault"
)

const sampleP4 = `#include <core.p4>

control ingress(inout headers hdr) {
    apply {
        @assert(hdr.ipv4.ttl > 0)
        hdr.ipv4.ttl = hdr.ipv4.ttl - 1;
        @assert(hdr.meta.index < 16)
        if (hdr.ipv4.isValid()) { @assert(isValid(hdr.ipv4)) }
    }
}
`

func Test_Extract(t *testing.T) {
	assertions, err := Extract("sample.p4", []byte(sampleP4))
	require.NoError(t, err)
	require.Len(t, assertions, 3)

	assert.Equal(t, "a1", assertions[0].ID)
	assert.Equal(t, 5, assertions[0].Line)
	assert.Equal(t, "hdr.ipv4.ttl > 0", assertions[0].Description)

	assert.Equal(t, "a2", assertions[1].ID)
	assert.Equal(t, 7, assertions[1].Line)

	// nested parentheses stay inside the body
	assert.Equal(t, "a3", assertions[2].ID)
	assert.Equal(t, "isValid(hdr.ipv4)", assertions[2].Description)
	assert.Equal(t, "sample.p4:8", assertions[2].Location())
}

func Test_ExtractIdentifiersStable(t *testing.T) {
	first, err := Extract("sample.p4", []byte(sampleP4))
	require.NoError(t, err)
	second, err := Extract("sample.p4", []byte(sampleP4))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	seen := map[string]bool{}
	for _, a := range first {
		assert.False(t, seen[a.ID], "duplicate id %s", a.ID)
		seen[a.ID] = true
	}
}

func Test_ExtractTwoAnnotationsOneLine(t *testing.T) {
	assertions, err := Extract("x.p4", []byte("@assert(a == 1) @assert(b == 2)\n"))
	require.NoError(t, err)
	require.Len(t, assertions, 2)
	assert.Equal(t, "a == 1", assertions[0].Description)
	assert.Equal(t, "b == 2", assertions[1].Description)
	assert.Equal(t, assertions[0].Line, assertions[1].Line)
}

func Test_ExtractUnterminated(t *testing.T) {
	_, err := Extract("x.p4", []byte("@assert(hdr.f == (1\n"))
	e, ok := fault.AsError(err)
	require.True(t, ok)
	assert.Equal(t, fault.ParseError, e.Kind)
	assert.Contains(t, err.Error(), "x.p4:1")
}

func Test_PrepareMissingSource(t *testing.T) {
	_, err := Prepare(path.Join(t.TempDir(), "nope.p4"), "")
	e, ok := fault.AsError(err)
	require.True(t, ok)
	assert.Equal(t, fault.SourceNotFound, e.Kind)
}

func Test_PrepareMissingRules(t *testing.T) {
	src := writeSource(t, sampleP4)
	_, err := Prepare(src, path.Join(t.TempDir(), "rules.txt"))
	e, ok := fault.AsError(err)
	require.True(t, ok)
	assert.Equal(t, fault.SourceNotFound, e.Kind)
}

func Test_PrepareNoAssertions(t *testing.T) {
	src := writeSource(t, "control ingress() { apply {} }\n")
	_, err := Prepare(src, "")
	e, ok := fault.AsError(err)
	require.True(t, ok)
	assert.Equal(t, fault.NoAssertionsFound, e.Kind)
}

func Test_PrepareStagesWorkdir(t *testing.T) {
	src := writeSource(t, sampleP4)
	prep, err := Prepare(src, "")
	require.NoError(t, err)
	defer prep.Cleanup()

	assert.NotEmpty(t, prep.RunID)
	assert.Contains(t, prep.WorkDir, prep.RunID)
	info, err := os.Stat(prep.WorkDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Len(t, prep.Assertions, 3)

	a, ok := prep.AssertionByID("a2")
	assert.True(t, ok)
	assert.Equal(t, "hdr.meta.index < 16", a.Description)

	prep.Cleanup()
	_, err = os.Stat(prep.WorkDir)
	assert.True(t, os.IsNotExist(err))
}

// workdirs are isolated per run, two runs never share one
func Test_PrepareIsolatedWorkdirs(t *testing.T) {
	src := writeSource(t, sampleP4)
	first, err := Prepare(src, "")
	require.NoError(t, err)
	defer first.Cleanup()
	second, err := Prepare(src, "")
	require.NoError(t, err)
	defer second.Cleanup()

	assert.NotEqual(t, first.WorkDir, second.WorkDir)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func writeSource(t *testing.T, content string) string {
	t.Helper()
	file := path.Join(t.TempDir(), "sample.p4")
	err := os.WriteFile(file, []byte(content), 0644)
	require.NoError(t, err)
	return file
}
