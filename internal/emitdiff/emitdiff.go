// Package emitdiff extracts the incremental slice of a new full-program
// emission. The compiler has no delta-emission mode, so the engine always
// requests the whole accumulated program and subtracts what earlier cells
// already delivered to the evaluator. That is only sound because committed
// buffer lines are never rewritten, which keeps their emitted form stable
// across recompiles.
package emitdiff

import (
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"
)

// ExtractNew returns the concatenation of the lines present in next but
// not attributed to prev, in emission order.
func ExtractNew(prev, next string) string {
	if prev == next {
		return ""
	}
	if prev == "" {
		return next
	}

	a := splitLines(prev)
	b := splitLines(next)

	m := difflib.NewMatcher(a, b)
	var out []string
	for _, op := range m.GetOpCodes() {
		// 'i' — вставка, 'r' — замена: новые строки берём из b.
		if op.Tag == 'i' || op.Tag == 'r' {
			out = append(out, b[op.J1:op.J2]...)
		}
	}
	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, "\n") + "\n"
}

func splitLines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}
