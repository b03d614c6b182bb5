package agenda

import "sort"

// Strategy names one of the seven conflict-resolution strategies.
type Strategy string

const (
	StrategyDepth      Strategy = "depth"
	StrategyBreadth    Strategy = "breadth"
	StrategyLex        Strategy = "lex"
	StrategyMea        Strategy = "mea"
	StrategySimplicity Strategy = "simplicity"
	StrategyComplexity Strategy = "complexity"
	StrategyRandom     Strategy = "random"
)

// less reports whether a has strictly higher priority than b (a pops
// before b), given strategy. Salience is always compared first by the
// caller; less is only consulted to break salience ties.
func less(strategy Strategy, a, b *Activation) bool {
	switch strategy {
	case StrategyDepth:
		if a.Timetag != b.Timetag {
			return a.Timetag > b.Timetag // LIFO: later-activated first
		}
	case StrategyBreadth:
		if a.Timetag != b.Timetag {
			return a.Timetag < b.Timetag // FIFO: earlier first
		}
	case StrategyLex:
		if c := compareTimetagTuples(a.factTimetags(), b.factTimetags(), false); c != 0 {
			return c > 0
		}
	case StrategyMea:
		if c := compareTimetagTuples(a.factTimetags(), b.factTimetags(), true); c != 0 {
			return c > 0
		}
	case StrategySimplicity:
		if a.Specificity != b.Specificity {
			return a.Specificity < b.Specificity // fewer patterns is "simpler" and wins
		}
	case StrategyComplexity:
		if a.Specificity != b.Specificity {
			return a.Specificity > b.Specificity // more patterns is "more complex" and wins
		}
	case StrategyRandom:
		if a.RandomKey != b.RandomKey {
			return a.RandomKey < b.RandomKey
		}
	}
	// final, universal tie-break: insertion order (depth semantics),
	// keeps the ordering a strict weak ordering even when the
	// strategy-specific keys are equal.
	return a.Timetag > b.Timetag
}

// compareTimetagTuples compares two instantiations' sorted fact-index
// tuples, descending (most recently asserted fact first), the lex/mea
// comparison. When mea is set, the first element (the specially
// treated fact) is compared before the rest of the sorted tuple.
func compareTimetagTuples(a, b []uint64, mea bool) int {
	if mea && len(a) > 0 && len(b) > 0 {
		if a[0] != b[0] {
			if a[0] > b[0] {
				return 1
			}
			return -1
		}
		a, b = a[1:], b[1:]
	}
	sa := append([]uint64(nil), a...)
	sb := append([]uint64(nil), b...)
	sort.Slice(sa, func(i, j int) bool { return sa[i] > sa[j] })
	sort.Slice(sb, func(i, j int) bool { return sb[i] > sb[j] })
	for i := 0; i < len(sa) && i < len(sb); i++ {
		if sa[i] != sb[i] {
			if sa[i] > sb[i] {
				return 1
			}
			return -1
		}
	}
	return len(sa) - len(sb)
}
