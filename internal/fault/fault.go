// Package fault defines the stage-tagged error taxonomy of the pipeline.
// Every failure is fatal to the run and maps to a distinct exit code so
// automated callers can tell "assertions violated" from "pipeline broke".
package fault

import (
	"errors"
	"fmt"
	"strings"
)

type Kind int

const (
	// Source Preparer.
	SourceNotFound Kind = iota + 1
	NoAssertionsFound
	ParseError
	// Lowering Coordinator.
	CompilationError
	LinkError
	InstrumentationMismatch
	// Exploration Driver.
	EngineCrashed
	BudgetMisconfigured
	// Anything that is a defect in this tool rather than in the inputs
	// or the collaborators.
	Internal
)

// Exit codes 0 and 1 are reserved for the pass/fail verdicts.
const (
	ExitPass = 0
	ExitFail = 1
)

func (k Kind) String() string {
	switch k {
	case SourceNotFound:
		return "SourceNotFound"
	case NoAssertionsFound:
		return "NoAssertionsFound"
	case ParseError:
		return "ParseError"
	case CompilationError:
		return "CompilationError"
	case LinkError:
		return "LinkError"
	case InstrumentationMismatch:
		return "InstrumentationMismatch"
	case EngineCrashed:
		return "EngineCrashed"
	case BudgetMisconfigured:
		return "BudgetMisconfigured"
	case Internal:
		return "Internal"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Stage names the pipeline stage an error kind belongs to.
func (k Kind) Stage() string {
	switch k {
	case SourceNotFound, NoAssertionsFound, ParseError:
		return "source-preparer"
	case CompilationError, LinkError, InstrumentationMismatch:
		return "lowering-coordinator"
	case EngineCrashed, BudgetMisconfigured:
		return "exploration-driver"
	}
	return "pipeline"
}

// ExitCode returns the process exit code for the kind.
func (k Kind) ExitCode() int {
	switch k {
	case SourceNotFound:
		return 10
	case NoAssertionsFound:
		return 11
	case ParseError:
		return 12
	case CompilationError:
		return 20
	case LinkError:
		return 21
	case InstrumentationMismatch:
		return 22
	case EngineCrashed:
		return 30
	case BudgetMisconfigured:
		return 31
	}
	return 99
}

// Error is a run-fatal pipeline error. Diagnostic holds collaborator output
// verbatim: the user needs the underlying tool's own text, not a summary.
type Error struct {
	Kind       Kind
	Message    string
	Diagnostic string
	Err        error
}

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithDiagnostic attaches verbatim collaborator output to the error.
func (e *Error) WithDiagnostic(text string) *Error {
	e.Diagnostic = strings.TrimRight(text, "\n")
	return e
}

func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s", e.Kind.Stage(), e.Kind, e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Diagnostic != "" {
		fmt.Fprintf(&b, "\n%s", e.Diagnostic)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// ExitCode extracts the exit code for err, 99 for non-pipeline errors.
func ExitCode(err error) int {
	if e, ok := AsError(err); ok {
		return e.Kind.ExitCode()
	}
	return Internal.ExitCode()
}

// AsError unwraps err to a *Error if one is in its chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
