package diag

import (
	"fmt"
)

// Origin reports which file a diagnostic belongs to, relative to the
// notebook's synthetic source file.
type Origin uint8

const (
	// OriginCell means the diagnostic points into the accumulated cell buffer.
	OriginCell Origin = iota
	// OriginOther means the diagnostic points into a real file on disk.
	OriginOther
)

// Position is a 1-based line/column location within a named file.
type Position struct {
	File string
	Line uint32
	Col  uint32
}

func (p Position) String() string {
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col)
}

type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Origin   Origin
	Pos      Position
}
