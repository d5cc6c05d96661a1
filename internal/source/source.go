// Package source implements the first pipeline stage: locating the P4
// program, extracting its assertion annotations and staging an isolated
// working directory for the run.
package source

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/P4-Verification-Tools/assert-p4-16/internal/fault"
)

// Annotation is the assertion marker the companion compiler accepts. Only
// the site is located here; the expression inside is opaque to this stage.
const Annotation = "@assert("

// An Assertion is a named, source-located predicate extracted from the P4
// program. Identifiers are assigned by order of appearance and are stable
// for the whole run, so a violation reported by the engine always traces
// back to exactly one of these.
type Assertion struct {
	ID          string
	File        string
	Line        int
	Description string
}

func (a Assertion) Location() string {
	return fmt.Sprintf("%s:%d", a.File, a.Line)
}

// Prepared is the staged input of a run: the validated source, the
// extracted assertions and a working directory isolated under the run ID.
type Prepared struct {
	RunID      string
	SourcePath string
	RulesPath  string
	WorkDir    string
	Assertions []Assertion
}

// Cleanup removes the working directory and everything staged under it.
func (p *Prepared) Cleanup() {
	if p.WorkDir == "" {
		return
	}
	if err := os.RemoveAll(p.WorkDir); err != nil {
		log.Errorf("removing workdir %s: %v", p.WorkDir, err)
	}
}

// AssertionByID returns the assertion with the given identifier.
func (p *Prepared) AssertionByID(id string) (Assertion, bool) {
	for _, a := range p.Assertions {
		if a.ID == id {
			return a, true
		}
	}
	return Assertion{}, false
}

// Prepare validates the source file, extracts its assertions and creates
// the run's working directory. rulesPath may be empty; when given it must
// name an existing forwarding-rules file handed through to the compiler.
func Prepare(sourcePath, rulesPath string) (*Prepared, error) {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fault.New(fault.SourceNotFound, "P4 source %s", sourcePath).WithCause(err)
	}
	if rulesPath != "" {
		if _, err := os.Stat(rulesPath); err != nil {
			return nil, fault.New(fault.SourceNotFound, "forwarding rules %s", rulesPath).WithCause(err)
		}
	}

	assertions, err := Extract(sourcePath, data)
	if err != nil {
		return nil, err
	}
	if len(assertions) == 0 {
		return nil, fault.New(fault.NoAssertionsFound,
			"no @assert annotations in %s, verification would be vacuous", sourcePath)
	}

	runID := uuid.NewString()
	workDir := filepath.Join(os.TempDir(), "assertp4-"+runID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fault.New(fault.Internal, "creating workdir").WithCause(err)
	}
	log.Infof("run %s: %d assertions extracted from %s", runID, len(assertions), sourcePath)

	return &Prepared{
		RunID:      runID,
		SourcePath: sourcePath,
		RulesPath:  rulesPath,
		WorkDir:    workDir,
		Assertions: assertions,
	}, nil
}

// Extract scans P4 source text for assertion annotations and assigns each a
// sequential identifier. The annotation body must close on the same line;
// nested parentheses inside it are allowed.
func Extract(file string, data []byte) ([]Assertion, error) {
	var assertions []Assertion
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		rest := line
		for {
			idx := strings.Index(rest, Annotation)
			if idx < 0 {
				break
			}
			body, consumed, err := annotationBody(rest[idx+len(Annotation):])
			if err != nil {
				return nil, fault.New(fault.ParseError, "%s:%d: %v", file, lineNum, err)
			}
			assertions = append(assertions, Assertion{
				ID:          fmt.Sprintf("a%d", len(assertions)+1),
				File:        file,
				Line:        lineNum,
				Description: body,
			})
			rest = rest[idx+len(Annotation)+consumed:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fault.New(fault.ParseError, "scanning %s", file).WithCause(err)
	}
	return assertions, nil
}

// annotationBody reads up to the parenthesis that closes the annotation,
// honoring nesting, and returns the body text and bytes consumed.
func annotationBody(s string) (string, int, error) {
	depth := 1
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[:i]), i + 1, nil
			}
		}
	}
	return "", 0, fmt.Errorf("unterminated %s annotation", strings.TrimSuffix(Annotation, "("))
}
