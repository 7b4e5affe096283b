// Package pragma extracts leading %-directive lines from a cell and turns
// them into a one-shot override request for the option resolver.
//
// Syntax, one directive per line, only at the top of the cell:
//
//	%<key>[!] <value>
//
// "async" is a kernel-level switch; every other key is a compiler-option
// name whose value is a JSON literal (bool, number, string, object). A
// trailing ! marks the patch as permanent: it survives into subsequent
// cells instead of applying to this cell only. A missing value means true.
// Directive lines are never passed to the compiler.
package pragma

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Marker is the reserved directive prefix character.
const Marker = '%'

const keyAsync = "async"

// Patch is a single compiler-option override decoded from one directive.
type Patch struct {
	Key       string
	Value     any
	Permanent bool
}

// Overrides is the per-cell override request. Consumed once; only its
// permanent patches outlive the cell.
type Overrides struct {
	Patches []Patch
	Async   bool
}

// BadValueError reports a directive whose value is not a valid literal.
// It is fatal for the cell: the session rejects before any compile attempt.
type BadValueError struct {
	Key   string
	Value string
}

func (e *BadValueError) Error() string {
	return fmt.Sprintf("pragma %c%s: cannot parse value %q as a literal", Marker, e.Key, e.Value)
}

// Parse strips the leading directive block from normalized cell text and
// decodes it. Pure function of its input.
func Parse(text string) (cleaned string, ov Overrides, err error) {
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || !isDirective(lines[0]) {
		return text, Overrides{}, nil
	}

	n := 0
	for n < len(lines) && isDirective(lines[n]) {
		key, value := splitDirective(lines[n])
		n++
		if key == "" {
			continue
		}
		permanent := strings.HasSuffix(key, "!")
		key = strings.TrimSuffix(key, "!")

		// async is a kernel switch, not a compiler option; permanence
		// does not apply to it.
		if key == keyAsync {
			on, perr := parseBool(value)
			if perr != nil {
				return "", Overrides{}, perr
			}
			ov.Async = on
			continue
		}

		v, perr := parseLiteral(key, value)
		if perr != nil {
			return "", Overrides{}, perr
		}
		ov.Patches = append(ov.Patches, Patch{Key: key, Value: v, Permanent: permanent})
	}

	return strings.Join(lines[n:], "\n"), ov, nil
}

func isDirective(line string) bool {
	return len(line) > 0 && line[0] == Marker
}

// splitDirective разбивает "%key value" на ("key", "value").
func splitDirective(line string) (key, value string) {
	rest := strings.TrimSpace(line[1:])
	if rest == "" {
		return "", ""
	}
	if i := strings.IndexAny(rest, " \t"); i >= 0 {
		return rest[:i], strings.TrimSpace(rest[i+1:])
	}
	return rest, ""
}

func parseBool(value string) (bool, error) {
	switch value {
	case "", "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, &BadValueError{Key: keyAsync, Value: value}
}

// parseLiteral decodes a JSON literal, accepting bare words as strings so
// that %module repl works without quoting.
func parseLiteral(key, value string) (any, error) {
	if value == "" {
		return true, nil
	}
	if gjson.Valid(value) {
		return gjson.Parse(value).Value(), nil
	}
	if isBareWord(value) {
		return value, nil
	}
	return nil, &BadValueError{Key: key, Value: value}
}

func isBareWord(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_', r == '-', r == '.', r == '/':
		default:
			return false
		}
	}
	return s != ""
}
