// Package verdict implements the final pipeline stage: distilling the raw
// exploration reports into a per-assertion outcome map and an overall
// pass/fail result. It performs no I/O beyond writing the finished artifact
// and is pure data transformation otherwise.
package verdict

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/P4-Verification-Tools/assert-p4-16/internal/exploration"
	"github.com/P4-Verification-Tools/assert-p4-16/internal/lowering"
	"github.com/P4-Verification-Tools/assert-p4-16/internal/source"
)

// Per-assertion outcomes. The outcome set partitions the assertion set:
// every extracted assertion gets exactly one of these.
const (
	OutcomeViolated    = "violated"
	OutcomeNotViolated = "not_violated_within_budget"
	OutcomeUnreachable = "unreachable_within_budget"
)

const (
	ResultPass = "pass"
	ResultFail = "fail"
)

type Outcome struct {
	Status      string            `json:"status"`
	Location    string            `json:"location"`
	Description string            `json:"description"`
	// Counterexample is the concrete input assignment reproducing the
	// violation; set only when Status is violated.
	Counterexample map[string]string `json:"counterexample,omitempty"`
}

// Meta is the run metadata carried on the verdict artifact.
type Meta struct {
	RunID         string `json:"run_id"`
	Source        string `json:"source"`
	Budget        string `json:"budget"`
	ElapsedMS     int64  `json:"time_ms"`
	PathsExplored int    `json:"paths_explored"`
	Details       string `json:"details,omitempty"`
}

type Verdict struct {
	Result   string             `json:"verdict"`
	Outcomes map[string]Outcome `json:"assertions"`
	Run      Meta               `json:"run"`
}

// Synthesize maps each trap-hit report back to its assertion through the
// module's trap map and assembles the verdict. When several reports violate
// the same assertion, the first one seen in engine stream order supplies
// the counterexample; later ones are dropped. An assertion never violated
// is not_violated if some path passed through its trap location, else
// unreachable.
func Synthesize(prep *source.Prepared, trapMap lowering.TrapMap, reports []exploration.Report, meta Meta) *Verdict {
	covered := make(map[string]bool)
	violated := make(map[string]map[string]string)

	for _, rep := range reports {
		for _, trapID := range rep.Covered {
			if id, ok := trapMap.Resolve(trapID); ok {
				covered[id] = true
			}
		}
		if rep.Status != exploration.StatusTrap {
			continue
		}
		id, ok := trapMap.Resolve(rep.TrapID)
		if !ok {
			// The bijection was validated at lowering time, so an
			// unknown trap here is an engine artifact (for example a
			// runtime-internal abort), not a user assertion.
			continue
		}
		covered[id] = true
		if _, seen := violated[id]; !seen {
			violated[id] = rep.Input
		}
	}

	v := &Verdict{
		Result:   ResultPass,
		Outcomes: make(map[string]Outcome, len(prep.Assertions)),
		Run:      meta,
	}
	v.Run.PathsExplored = len(reports)

	for _, a := range prep.Assertions {
		out := Outcome{
			Location:    a.Location(),
			Description: a.Description,
		}
		switch {
		case hasKey(violated, a.ID):
			out.Status = OutcomeViolated
			out.Counterexample = violated[a.ID]
			v.Result = ResultFail
		case covered[a.ID]:
			out.Status = OutcomeNotViolated
		default:
			out.Status = OutcomeUnreachable
		}
		v.Outcomes[a.ID] = out
	}
	return v
}

func hasKey(m map[string]map[string]string, k string) bool {
	_, ok := m[k]
	return ok
}

// WriteJSON writes the verdict artifact as indented, field-labeled JSON.
func (v *Verdict) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(v), "encode verdict")
}

// WriteFile persists the verdict artifact at path, or to stdout when path
// is "-" or empty.
func (v *Verdict) WriteFile(path string) error {
	if path == "" || path == "-" {
		return v.WriteJSON(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create verdict file")
	}
	defer f.Close()
	return v.WriteJSON(f)
}
