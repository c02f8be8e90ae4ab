package agent

import (
	"fmt"
	"slices"
	"strings"
)

// maxCyclePeriod is the longest responder cycle the guard looks for
// (A,A,A is period 1; A,B,A,B is period 2; A,B,C,A,B,C is period 3).
const maxCyclePeriod = 3

// LoopGuard bounds hop count and repetition within one dispatch cycle.
type LoopGuard struct {
	RepeatBound int
	MaxHops     int
}

// NewLoopGuard builds a guard from the dispatch options.
func NewLoopGuard(opts Options) LoopGuard {
	return LoopGuard{RepeatBound: opts.RepeatBound, MaxHops: opts.MaxHops}
}

// Check reports whether running candidate after history would trip the guard.
// detail says which bound was hit.
func (g LoopGuard) Check(history []string, candidate string) (tripped bool, detail string) {
	if g.MaxHops > 0 && len(history) >= g.MaxHops {
		return true, fmt.Sprintf("hop ceiling %d reached", g.MaxHops)
	}
	if g.RepeatBound <= 0 {
		return false, ""
	}

	seq := append(slices.Clone(history), candidate)
	for period := 1; period <= maxCyclePeriod; period++ {
		if reps := trailingRepeats(seq, period); reps > g.RepeatBound {
			block := seq[len(seq)-period:]
			if period == 1 {
				return true, fmt.Sprintf("responder %q would run %d times in a row (bound %d)",
					candidate, reps, g.RepeatBound)
			}
			return true, fmt.Sprintf("cycle [%s] would repeat %d times (bound %d)",
				strings.Join(block, " -> "), reps, g.RepeatBound)
		}
	}
	return false, ""
}

// trailingRepeats counts how many times the last period-sized block of seq
// occurs back to back at the end of seq.
func trailingRepeats(seq []string, period int) int {
	if period <= 0 || len(seq) < period {
		return 0
	}
	block := seq[len(seq)-period:]
	reps := 1
	for end := len(seq) - period; end-period >= 0; end -= period {
		if !slices.Equal(seq[end-period:end], block) {
			break
		}
		reps++
	}
	return reps
}
