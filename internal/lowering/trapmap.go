package lowering

import (
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/P4-Verification-Tools/assert-p4-16/internal/fault"
	"github.com/P4-Verification-Tools/assert-p4-16/internal/source"
)

// TrapMap is the instrumentation contract emitted by the compiler: one trap
// per assertion, one assertion per trap. It is produced once at lowering
// time, validated immediately and passed by value through the rest of the
// run, never re-derived.
type TrapMap struct {
	Version int             `json:"version"`
	Traps   map[string]Trap `json:"traps"`
}

type Trap struct {
	Assertion string `json:"assertion"`
	File      string `json:"file"`
	Line      int    `json:"line"`
}

// Resolve maps a trap identifier back to its assertion identifier.
func (tm TrapMap) Resolve(trapID string) (string, bool) {
	t, ok := tm.Traps[trapID]
	return t.Assertion, ok
}

// TrapFor returns the trap identifier instrumenting the given assertion.
func (tm TrapMap) TrapFor(assertionID string) (string, bool) {
	for id, t := range tm.Traps {
		if t.Assertion == assertionID {
			return id, true
		}
	}
	return "", false
}

func readTrapMap(path string) (TrapMap, error) {
	var tm TrapMap
	data, err := os.ReadFile(path)
	if err != nil {
		return tm, fault.New(fault.InstrumentationMismatch,
			"compiler did not emit a trap map at %s", path).WithCause(err)
	}
	if err := json.Unmarshal(data, &tm); err != nil {
		return tm, fault.New(fault.InstrumentationMismatch,
			"unreadable trap map %s", path).WithCause(err)
	}
	return tm, nil
}

// validateBijection checks that every assertion has exactly one trap and
// every trap names a known assertion. Any mismatch is a defect in the
// compiler's instrumentation contract, reported with the unmatched
// identifiers from both namespaces so it can be filed against the compiler.
func validateBijection(assertions []source.Assertion, tm TrapMap) error {
	trapped := make(map[string][]string, len(tm.Traps))
	for trapID, t := range tm.Traps {
		trapped[t.Assertion] = append(trapped[t.Assertion], trapID)
	}

	var problems []string
	for _, a := range assertions {
		switch traps := trapped[a.ID]; len(traps) {
		case 1:
		case 0:
			problems = append(problems, "assertion "+a.ID+" has no trap")
		default:
			sort.Strings(traps)
			problems = append(problems, "assertion "+a.ID+" has traps "+strings.Join(traps, ","))
		}
		delete(trapped, a.ID)
	}
	var orphans []string
	for assertionID, traps := range trapped {
		sort.Strings(traps)
		orphans = append(orphans, "trap "+strings.Join(traps, ",")+" names unknown assertion "+assertionID)
	}
	sort.Strings(orphans)
	problems = append(problems, orphans...)

	if len(problems) > 0 {
		return fault.New(fault.InstrumentationMismatch,
			"trap map is not a bijection over the assertion set").
			WithDiagnostic(strings.Join(problems, "\n"))
	}
	return nil
}
