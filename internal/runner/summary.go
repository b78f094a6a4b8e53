package runner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// runState accumulates per-iteration verdicts for the summary file and the
// final statistics table.
type runState struct {
	startedAt     time.Time
	lines         []string
	counts        map[Classification]int
	mutationStats map[int]int // iteration -> mutation rounds to violation
}

func newRunState(startedAt time.Time) *runState {
	return &runState{
		startedAt: startedAt,
		counts: map[Classification]int{
			ClassOK:        0,
			ClassViolation: 0,
			ClassRealtime:  0,
			ClassError:     0,
		},
		mutationStats: make(map[int]int),
	}
}

// updateSummary records one iteration's outcome and rewrites the summary
// file. The file is rewritten whole every iteration so a killed run still
// leaves a complete picture behind.
func (r *Runner) updateSummary(iteration int, class Classification, seed uint32, mutations int) {
	s := r.state
	s.counts[class]++
	if class == ClassViolation && mutations > 0 {
		s.mutationStats[iteration] = mutations
	}

	entry := fmt.Sprintf("Iteration %04d: %-9s (seed: %d", iteration, class, seed)
	if mutations > 0 {
		entry += fmt.Sprintf(", mutations: %d)", mutations)
	} else {
		entry += ")"
	}
	s.lines = append(s.lines, entry)

	path := filepath.Join(r.cfg.Fuzz.LogDir, "summary.txt")
	if err := os.WriteFile(path, []byte(s.render(r.cfg.Fuzz, iteration+1)), 0o644); err != nil {
		r.log.Warn("runner: failed to write summary", "path", path, "error", err)
	}
}

func (s *runState) render(cfg *Config, completed int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Fuzzing run summary\n")
	fmt.Fprintf(&b, "Started at: %s\n", s.startedAt.Format("2006-01-02 15:04:05"))

	if cfgYAML, err := yaml.Marshal(cfg); err == nil {
		fmt.Fprintf(&b, "Config:\n%s", cfgYAML)
	}

	fmt.Fprintf(&b, "\n--- Statistics ---\n")
	fmt.Fprintf(&b, "Iterations completed: %d\n", completed)
	for _, class := range []Classification{ClassOK, ClassViolation, ClassRealtime, ClassError} {
		fmt.Fprintf(&b, "%s: %d\n", class, s.counts[class])
	}
	if avg, ok := s.averageMutations(); ok {
		fmt.Fprintf(&b, "\n--- Mutation Statistics ---\n")
		fmt.Fprintf(&b, "Average mutations to find violation: %.2f\n", avg)
	}

	fmt.Fprintf(&b, "\n--- Iteration Log ---\n")
	fmt.Fprintf(&b, "%s\n", strings.Join(s.lines, "\n"))
	return b.String()
}

func (s *runState) averageMutations() (float64, bool) {
	if len(s.mutationStats) == 0 {
		return 0, false
	}
	total := 0
	for _, n := range s.mutationStats {
		total += n
	}
	return float64(total) / float64(len(s.mutationStats)), true
}

// printStats renders the final per-classification counts as a table.
func (r *Runner) printStats(w io.Writer) {
	s := r.state

	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Result", "Count"})

	for _, class := range []Classification{ClassOK, ClassViolation, ClassRealtime, ClassError} {
		table.Append([]string{string(class), fmt.Sprintf("%d", s.counts[class])})
	}
	table.Render()

	if avg, ok := s.averageMutations(); ok {
		fmt.Fprintf(w, "Average mutations to find violation: %.2f\n", avg)
	}
}
