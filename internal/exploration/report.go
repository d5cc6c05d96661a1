package exploration

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Terminal statuses the engine wrapper may report for an explored path.
const (
	StatusNormal = "normal" // path terminated without hitting a trap
	StatusTrap   = "trap"   // path hit an assertion trap
	StatusBudget = "budget" // engine abandoned the path at its budget
	StatusError  = "error"  // engine-internal error on this path
)

// Report is one record of the engine's per-path output stream. Input is the
// concrete input assignment reproducing the path; Covered lists every trap
// location the path passed through, triggered or not.
type Report struct {
	Status  string            `json:"status"`
	TrapID  string            `json:"trap,omitempty"`
	Input   map[string]string `json:"input,omitempty"`
	Covered []string          `json:"covered,omitempty"`
}

func validStatus(s string) bool {
	switch s {
	case StatusNormal, StatusTrap, StatusBudget, StatusError:
		return true
	}
	return false
}

// decodeReports consumes the engine's newline-delimited JSON stream
// incrementally, handing each report to emit as soon as its line arrives.
// Reports decoded before the stream is cut off (for example by a budget
// kill) are all delivered; the error, if any, describes the first malformed
// record.
func decodeReports(r io.Reader, emit func(Report) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rep Report
		if err := json.Unmarshal([]byte(line), &rep); err != nil {
			return fmt.Errorf("report line %d: %v", lineNum, err)
		}
		if !validStatus(rep.Status) {
			return fmt.Errorf("report line %d: unknown status %q", lineNum, rep.Status)
		}
		if rep.Status == StatusTrap && rep.TrapID == "" {
			return fmt.Errorf("report line %d: trap report without trap id", lineNum)
		}
		if !emit(rep) {
			return nil
		}
	}
	// A read error here is normally the pipe closing under a budget kill;
	// the caller decides whether that was expected.
	if err := scanner.Err(); err != nil {
		return err
	}
	return nil
}
