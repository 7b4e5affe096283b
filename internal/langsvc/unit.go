package langsvc

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
)

// importSpec is one hoisted import with the buffer line it came from.
type importSpec struct {
	name string // local name, "" when none
	path string // quoted path, compiler syntax
	line int    // 1-based buffer line of the spec
}

func (s importSpec) render() string {
	if s.name == "" {
		return "import " + s.path
	}
	return "import " + s.name + " " + s.path
}

// unit is the synthetic compilation unit built from the whole buffer:
//
//	package notebook
//	import ( ... hoisted specs ... )
//	<hoisted func and method declarations, verbatim>
//	func _cells() {
//	  <buffer lines, hoisted lines blanked, 1:1>
//	}
//
// Buffer lines map to wrapped lines by a single offset (headerLen), which
// is what makes cell-relative diagnostic remapping exact. Hoisted lines
// keep their own origin map since they move into the header.
type unit struct {
	text       string
	headerLen  int
	bodyLen    int
	imports    []importSpec
	originLine map[int]int // wrapped header line -> buffer line
	isImport   []bool      // per buffer line (0-based)
	isHoisted  []bool      // per buffer line: moved into the header
}

// buildUnit hoists import and func declarations out of the buffer and
// wraps the rest in a function body. Candidates that do not parse are
// left in place so the compiler reports them at their true line.
func buildUnit(lines []string) unit {
	u := unit{
		bodyLen:    len(lines),
		originLine: make(map[int]int),
		isImport:   make([]bool, len(lines)),
		isHoisted:  make([]bool, len(lines)),
	}

	body := make([]string, len(lines))
	copy(body, lines)

	var funcBlocks [][2]int // [start, end] buffer indices, 0-based

	for i := 0; i < len(lines); i++ {
		switch {
		case looksLikeImport(lines[i]):
			end, ok := importGroupEnd(lines, i)
			if !ok {
				continue
			}
			specs, ok := parseImportGroup(lines[i:end+1], i+1)
			if !ok {
				continue
			}
			u.imports = append(u.imports, specs...)
			for j := i; j <= end; j++ {
				u.isImport[j] = true
				u.isHoisted[j] = true
				body[j] = ""
			}
			i = end
		case looksLikeFuncDecl(lines[i]):
			end, ok := funcDeclEnd(lines, i)
			if !ok || !parsesAsFuncDecls(lines[i:end+1]) {
				continue
			}
			funcBlocks = append(funcBlocks, [2]int{i, end})
			for j := i; j <= end; j++ {
				u.isHoisted[j] = true
				body[j] = ""
			}
			i = end
		}
	}

	u.imports = dedupImports(u.imports)

	var b strings.Builder
	ln := 0
	writeLine := func(s string) {
		b.WriteString(s)
		b.WriteByte('\n')
		ln++
	}

	writeLine("package notebook")
	if len(u.imports) > 0 {
		writeLine("import (")
		for _, s := range u.imports {
			if s.name == "" {
				writeLine(fmt.Sprintf("\t%s", s.path))
			} else {
				writeLine(fmt.Sprintf("\t%s %s", s.name, s.path))
			}
			u.originLine[ln] = s.line
		}
		writeLine(")")
	}
	for _, blk := range funcBlocks {
		for j := blk[0]; j <= blk[1]; j++ {
			writeLine(lines[j])
			u.originLine[ln] = j + 1
		}
	}
	writeLine("func _cells() {")
	u.headerLen = ln
	for _, line := range body {
		writeLine(line)
	}
	writeLine("}")
	u.text = b.String()
	return u
}

// mapLine translates a wrapped-unit line back to a buffer line. Lines on
// the closing brace clamp to the last buffer line; anything else outside
// the body clamps to the first.
func (u unit) mapLine(wrapped int) int {
	if l, ok := u.originLine[wrapped]; ok {
		return l
	}
	if wrapped > u.headerLen+u.bodyLen {
		if u.bodyLen == 0 {
			return 1
		}
		return u.bodyLen
	}
	if wrapped <= u.headerLen {
		return 1
	}
	return wrapped - u.headerLen
}

// emission renders the full-program output for the evaluator: the import
// section in first-appearance order, then every non-import buffer line
// verbatim. Hoisted func declarations stay at their buffer position; the
// evaluator accepts them top-level. Committed lines always render
// identically, so the emission is byte-stable under appends.
func (u unit) emission(lines []string) string {
	var b strings.Builder
	for _, s := range u.imports {
		b.WriteString(s.render())
		b.WriteByte('\n')
	}
	for i, line := range lines {
		if u.isImport[i] {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func looksLikeImport(line string) bool {
	t := strings.TrimSpace(line)
	if !strings.HasPrefix(t, "import") {
		return false
	}
	rest := t[len("import"):]
	return rest == "" || rest[0] == ' ' || rest[0] == '\t' || rest[0] == '(' || rest[0] == '"'
}

func looksLikeFuncDecl(line string) bool {
	t := strings.TrimSpace(line)
	if !strings.HasPrefix(t, "func") {
		return false
	}
	rest := t[len("func"):]
	return rest != "" && (rest[0] == ' ' || rest[0] == '\t' || rest[0] == '(')
}

// importGroupEnd returns the last line index of the import declaration
// starting at i: the same line for a single spec, or the line holding the
// closing parenthesis for a group.
func importGroupEnd(lines []string, i int) (int, bool) {
	t := strings.TrimSpace(lines[i])
	rest := strings.TrimSpace(strings.TrimPrefix(t, "import"))
	if !strings.HasPrefix(rest, "(") {
		return i, true
	}
	for j := i; j < len(lines); j++ {
		if strings.Contains(lines[j], ")") {
			return j, true
		}
	}
	return 0, false
}

// funcDeclEnd returns the line index where the function declaration
// starting at i closes its body, found by brace counting that skips
// string, rune and comment content.
func funcDeclEnd(lines []string, i int) (int, bool) {
	var sc braceScanner
	for j := i; j < len(lines); j++ {
		sc.feed(lines[j])
		if sc.depth < 0 {
			return 0, false
		}
		if sc.closed() {
			return j, true
		}
	}
	return 0, false
}

// braceScanner counts brace depth across lines. Raw strings and block
// comments carry state between lines.
type braceScanner struct {
	depth   int
	opened  bool
	inRaw   bool
	inBlock bool
}

func (s *braceScanner) closed() bool {
	return s.opened && s.depth == 0 && !s.inRaw && !s.inBlock
}

func (s *braceScanner) feed(line string) {
	i := 0
	for i < len(line) {
		c := line[i]
		switch {
		case s.inRaw:
			if c == '`' {
				s.inRaw = false
			}
			i++
		case s.inBlock:
			if c == '*' && i+1 < len(line) && line[i+1] == '/' {
				s.inBlock = false
				i += 2
			} else {
				i++
			}
		case c == '/' && i+1 < len(line) && line[i+1] == '/':
			return
		case c == '/' && i+1 < len(line) && line[i+1] == '*':
			s.inBlock = true
			i += 2
		case c == '`':
			s.inRaw = true
			i++
		case c == '"' || c == '\'':
			q := c
			i++
			for i < len(line) {
				if line[i] == '\\' {
					i += 2
					continue
				}
				if line[i] == q {
					i++
					break
				}
				i++
			}
		case c == '{':
			s.depth++
			s.opened = true
			i++
		case c == '}':
			s.depth--
			i++
		default:
			i++
		}
	}
}

// parsesAsFuncDecls validates a candidate declaration block: it must
// parse standalone into nothing but function declarations. Anonymous
// function expressions used as statements fail here and stay in the body.
func parsesAsFuncDecls(declLines []string) bool {
	src := "package p\n" + strings.Join(declLines, "\n") + "\n"
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "", src, parser.SkipObjectResolution)
	if err != nil || len(f.Decls) == 0 {
		return false
	}
	for _, d := range f.Decls {
		if _, ok := d.(*ast.FuncDecl); !ok {
			return false
		}
	}
	return true
}

// parseImportGroup validates a candidate import declaration by parsing it
// standalone and returns its specs bound to buffer lines. startLine is the
// 1-based buffer line of the declaration's first line.
func parseImportGroup(declLines []string, startLine int) ([]importSpec, bool) {
	src := "package p\n" + strings.Join(declLines, "\n") + "\n"
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "", src, parser.ImportsOnly)
	if err != nil || len(f.Imports) == 0 {
		return nil, false
	}
	specs := make([]importSpec, 0, len(f.Imports))
	for _, im := range f.Imports {
		name := ""
		if im.Name != nil {
			name = im.Name.Name
		}
		miniLine := fset.Position(im.Pos()).Line
		specs = append(specs, importSpec{
			name: name,
			path: im.Path.Value,
			line: startLine + miniLine - 2,
		})
	}
	return specs, true
}

func dedupImports(specs []importSpec) []importSpec {
	seen := make(map[string]bool, len(specs))
	out := specs[:0]
	for _, s := range specs {
		key := s.name + " " + s.path
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
