package source

import (
	"crypto/sha256"
	"errors"
	"strings"
)

// Name is the synthetic file name the accumulated buffer is compiled under.
// Diagnostics reported against any other file point at real files on disk.
const Name = "__notebook__.go"

// ErrAlreadyStaged is returned when Stage is called twice without an
// intervening Commit or Rollback.
var ErrAlreadyStaged = errors.New("source: a cell is already staged")

// Document is the virtual, append-only source buffer for one notebook
// session: every line ever committed plus the currently staged cell.
//
// Invariants:
//   - committed <= len(lines) at all times
//   - after Commit: committed == len(lines), version advanced
//   - after Rollback: lines truncated to committed, version unchanged
//
// Committed lines are never rewritten, only appended to. The output
// differencer depends on that: emission for committed lines must stay
// byte-stable across recompiles.
type Document struct {
	lines     []string
	committed int
	version   uint32
	staged    bool
}

func NewDocument() *Document {
	return &Document{lines: make([]string, 0, 64)}
}

// Stage appends the cleaned cell text to the buffer without committing.
// At most one cell may be staged at a time; the session's serial execution
// model guarantees that, Stage only double-checks it.
func (d *Document) Stage(cleaned string) error {
	if d.staged {
		return ErrAlreadyStaged
	}
	d.lines = append(d.lines, SplitLines(cleaned)...)
	d.staged = true
	return nil
}

// Commit accepts the staged cell and advances the version. The version is
// the cache key handed to the language service, so it must change exactly
// when the committed buffer does.
func (d *Document) Commit() {
	d.committed = len(d.lines)
	d.version++
	d.staged = false
}

// Rollback drops the staged cell, restoring the last committed state.
func (d *Document) Rollback() {
	d.lines = d.lines[:d.committed]
	d.staged = false
}

// Staged reports whether a cell is pending.
func (d *Document) Staged() bool {
	return d.staged
}

// Committed returns the line count as of the last successful compile.
func (d *Document) Committed() int {
	return d.committed
}

// Len returns the total line count including the staged cell.
func (d *Document) Len() int {
	return len(d.lines)
}

// Version returns the monotonic commit counter.
func (d *Document) Version() uint32 {
	return d.version
}

// Lines возвращает read-only slice строк буфера.
// ВАЖНО: не модифицируйте возвращаемый срез!
func (d *Document) Lines() []string {
	return d.lines
}

// Line returns the 1-based line, or "" when out of range.
func (d *Document) Line(n int) string {
	if n < 1 || n > len(d.lines) {
		return ""
	}
	return d.lines[n-1]
}

// Text returns the whole buffer as a single string with a trailing newline.
func (d *Document) Text() string {
	if len(d.lines) == 0 {
		return ""
	}
	return strings.Join(d.lines, "\n") + "\n"
}

// Hash returns a digest of the current buffer content, staged included.
func (d *Document) Hash() [32]byte {
	return sha256.Sum256([]byte(d.Text()))
}
