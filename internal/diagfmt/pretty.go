// Package diagfmt renders diagnostics for humans. Positions inside the
// notebook's synthetic file are remapped to cell-relative coordinates so
// the user sees a location within the cell they just typed; positions in
// real files keep their path and absolute location.
package diagfmt

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"quill/internal/diag"
	"quill/internal/source"
)

// Opts configures rendering.
type Opts struct {
	Color      bool
	ShowSource bool // include the offending line with a caret underneath
}

var (
	errColor  = color.New(color.FgRed, color.Bold)
	warnColor = color.New(color.FgYellow)
	posColor  = color.New(color.FgCyan)
)

// FormatCell renders the error diagnostics of one failed cell.
// committedAtStart is the committed line count captured before the cell
// was staged; any error landing at or below it conflicts with code that
// was already accepted (an option change can invalidate earlier cells),
// which is reported rather than silently ignored.
func FormatCell(bag *diag.Bag, doc *source.Document, committedAtStart int, opts Opts) []string {
	errs := bag.Errors()
	out := make([]string, 0, len(errs))
	for _, d := range errs {
		out = append(out, formatOne(d, doc, committedAtStart, opts))
	}
	return out
}

func formatOne(d diag.Diagnostic, doc *source.Document, committedAtStart int, opts Opts) string {
	code := d.Code.String()
	msg := d.Message
	if opts.Color {
		msg = errColor.Sprint(msg)
	}

	// Конфигурационные диагностики без позиции.
	if d.Pos.Line == 0 {
		return fmt.Sprintf("%s [%s]", msg, code)
	}

	if d.Origin == diag.OriginOther {
		pos := fmt.Sprintf("%s:%d:%d", d.Pos.File, d.Pos.Line, d.Pos.Col)
		if opts.Color {
			pos = posColor.Sprint(pos)
		}
		return fmt.Sprintf("%s - %s [%s]", pos, msg, code)
	}

	line := int(d.Pos.Line)
	if line <= committedAtStart {
		return fmt.Sprintf("line %d conflicts with a committed line - %s [%s]", line, msg, code)
	}

	rel := line - committedAtStart
	loc := fmt.Sprintf("Line %d, Character %d", rel, d.Pos.Col)
	if opts.Color {
		loc = posColor.Sprint(loc)
	}
	s := fmt.Sprintf("%s - %s [%s]", loc, msg, code)
	if opts.ShowSource {
		if src := doc.Line(line); src != "" {
			pad := runewidth.StringWidth(truncCol(src, int(d.Pos.Col)))
			s += "\n    " + src + "\n    " + strings.Repeat(" ", pad) + "^"
		}
	}
	return s
}

// truncCol returns the prefix of src before the 1-based column col.
func truncCol(src string, col int) string {
	i := 0
	for n := 1; i < len(src) && n < col; n++ {
		_, size := utf8.DecodeRuneInString(src[i:])
		i += size
	}
	return src[:i]
}

// Pretty prints every diagnostic of a bag, one per line, in the
// toolchain's path:line:col form. Used by batch checking where there is
// no cell-relative frame.
func Pretty(w io.Writer, bag *diag.Bag, path string, opts Opts) {
	for _, d := range bag.Items() {
		sev := d.Severity.String()
		if opts.Color {
			switch d.Severity {
			case diag.SevError:
				sev = errColor.Sprint(sev)
			case diag.SevWarning:
				sev = warnColor.Sprint(sev)
			}
		}
		file := d.Pos.File
		if file == source.Name || file == "" {
			file = path
		}
		if d.Pos.Line == 0 {
			fmt.Fprintf(w, "%s: %s %s: %s\n", file, sev, d.Code, d.Message)
			continue
		}
		fmt.Fprintf(w, "%s:%d:%d: %s %s: %s\n", file, d.Pos.Line, d.Pos.Col, sev, d.Code, d.Message)
	}
}
