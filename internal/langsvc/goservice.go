package langsvc

import (
	"context"
	"fmt"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/scanner"
	"go/token"
	"go/types"

	"fortio.org/safecast"

	"quill/internal/cache"
	"quill/internal/diag"
	"quill/internal/options"
	"quill/internal/source"
)

// GoService is the production Service: go/parser for syntax, go/types for
// the optional semantic layer. The compiler itself is consumed as a
// capability; this adapter only feeds it the synthetic unit and maps its
// file-global positions back onto buffer lines.
//
// The in-memory result cache is keyed by (document version, content hash,
// option fingerprint): recompiling an unchanged buffer with unchanged
// options returns the previous result untouched.
type GoService struct {
	doc     *source.Document
	workdir string
	disk    *cache.Disk

	lastKey compileKey
	lastRes *CompileResult
}

type compileKey struct {
	version     uint32
	hash        [32]byte
	fingerprint string
}

// Option configures a GoService.
type Option func(*GoService)

// WithDiskCache enables emission memoization across processes.
func WithDiskCache(d *cache.Disk) Option {
	return func(g *GoService) { g.disk = d }
}

// NewGoService binds the service to one virtual document. workdir anchors
// relative paths in other-file diagnostics.
func NewGoService(doc *source.Document, workdir string, opts ...Option) *GoService {
	g := &GoService{doc: doc, workdir: workdir}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Compile runs the configuration, syntactic and (optionally) semantic
// layers over the current buffer and emits the full accumulated program
// when nothing errored.
func (g *GoService) Compile(ctx context.Context, set options.Set) (*CompileResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := compileKey{version: g.doc.Version(), hash: g.doc.Hash(), fingerprint: set.Fingerprint()}
	if g.lastRes != nil && key == g.lastKey {
		return g.lastRes, nil
	}

	bag := diag.NewBag(max(set.MaxDiagnostics(), 1))
	for _, d := range options.Validate(set) {
		bag.Add(d)
	}

	dkey := cache.Key(key.hash, key.fingerprint)
	var payload cache.Payload
	if ok, _ := g.disk.Get(dkey, &payload); ok {
		res := &CompileResult{Bag: bag, Emission: payload.Emission}
		g.remember(key, res)
		return res, nil
	}

	u := buildUnit(g.doc.Lines())
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, source.Name, u.text, parser.SkipObjectResolution)
	if err != nil {
		collectParseErrors(bag, u, err)
		res := &CompileResult{Bag: bag}
		g.remember(key, res)
		return res, nil
	}

	if set.TypeCheck() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		typeCheck(bag, u, set, fset, file)
	}

	bag.Dedup()
	bag.Sort()

	res := &CompileResult{Bag: bag}
	if !bag.HasErrors() {
		res.Emission = u.emission(g.doc.Lines())
		_ = g.disk.Put(dkey, &cache.Payload{Fingerprint: key.fingerprint, Emission: res.Emission})
	}
	g.remember(key, res)
	return res, nil
}

func (g *GoService) remember(key compileKey, res *CompileResult) {
	g.lastKey = key
	g.lastRes = res
}

func collectParseErrors(bag *diag.Bag, u unit, err error) {
	list, ok := err.(scanner.ErrorList)
	if !ok {
		bag.Add(diag.Diagnostic{
			Severity: diag.SevError,
			Code:     diag.SynParseFailed,
			Message:  err.Error(),
			Origin:   diag.OriginCell,
			Pos:      diag.Position{File: source.Name, Line: 1, Col: 1},
		})
		return
	}
	for _, e := range list {
		pos, origin := u.toDiagPos(e.Pos)
		if !bag.Add(diag.Diagnostic{
			Severity: diag.SevError,
			Code:     diag.SynParseFailed,
			Message:  e.Msg,
			Origin:   origin,
			Pos:      pos,
		}) {
			break
		}
	}
}

func typeCheck(bag *diag.Bag, u unit, set options.Set, fset *token.FileSet, file *ast.File) {
	conf := types.Config{
		Importer: importer.Default(),
		Error: func(err error) {
			terr, ok := err.(types.Error)
			if !ok {
				bag.Add(diag.Diagnostic{
					Severity: diag.SevError,
					Code:     diag.SemCheckFailed,
					Message:  err.Error(),
					Origin:   diag.OriginCell,
					Pos:      diag.Position{File: source.Name, Line: 1, Col: 1},
				})
				return
			}
			// Soft errors cover unused variables and imports; a notebook
			// declares ahead of use, so they are dropped by default.
			if set.IgnoreUnused() && terr.Soft {
				return
			}
			pos, origin := u.toDiagPos(terr.Fset.Position(terr.Pos))
			bag.Add(diag.Diagnostic{
				Severity: diag.SevError,
				Code:     diag.SemCheckFailed,
				Message:  terr.Msg,
				Origin:   origin,
				Pos:      pos,
			})
		},
	}
	// Ошибки собираются через callback; возврат Check не интересен.
	_, _ = conf.Check("notebook", fset, []*ast.File{file}, nil)
}

// toDiagPos maps a token position in the wrapped unit back to a buffer
// position. Positions in other files pass through untouched.
func (u unit) toDiagPos(p token.Position) (diag.Position, diag.Origin) {
	if p.Filename != source.Name {
		return diag.Position{File: p.Filename, Line: u32(p.Line), Col: u32(p.Column)}, diag.OriginOther
	}
	line := u.mapLine(p.Line)
	col := 1
	if p.Line > u.headerLen && p.Line <= u.headerLen+u.bodyLen {
		col = p.Column
	}
	return diag.Position{File: source.Name, Line: u32(line), Col: u32(col)}, diag.OriginCell
}

func u32(n int) uint32 {
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		panic(fmt.Errorf("position overflow: %w", err))
	}
	return v
}
