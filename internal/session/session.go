// Package session coordinates one notebook kernel session: pragma
// parsing, option resolution, staging, compilation, slice extraction and
// rollback. One Session owns one virtual document and one option resolver
// for the lifetime of the kernel process.
package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"quill/internal/cache"
	"quill/internal/diagfmt"
	"quill/internal/emitdiff"
	"quill/internal/langsvc"
	"quill/internal/observ"
	"quill/internal/options"
	"quill/internal/pragma"
	"quill/internal/source"
)

// CellError carries the fully formatted diagnostic text of a rejected
// cell. The session stays usable: nothing of the failed cell is visible
// to later cells.
type CellError struct {
	Message string
}

func (e *CellError) Error() string {
	return e.Message
}

// Result is one successfully transpiled cell: the incremental source
// slice for the evaluator (queued advisory displays prepended) and the
// cell's kernel switches.
type Result struct {
	Code  string
	Async bool
}

// Config configures a new session.
type Config struct {
	Workdir string
	Disk    *cache.Disk // optional emission memoization
	Format  diagfmt.Opts
	Timings bool
}

// Session is the transpile state machine: Idle → Staged → Committed or
// RolledBack → Idle. Execution is strictly serial; the host delivers one
// cell at a time and waits, so no locking guards the document.
type Session struct {
	doc      *source.Document
	resolver *options.Resolver
	svc      langsvc.Service
	fmtOpts  diagfmt.Opts
	timings  bool

	lastEmit  string
	warnings  []string
	noted     map[string]bool
	lastTimer *observ.Timer
}

func New(cfg Config) *Session {
	doc := source.NewDocument()
	var svcOpts []langsvc.Option
	if cfg.Disk != nil {
		svcOpts = append(svcOpts, langsvc.WithDiskCache(cfg.Disk))
	}
	return &Session{
		doc:      doc,
		resolver: options.NewResolver(cfg.Workdir),
		svc:      langsvc.NewGoService(doc, cfg.Workdir, svcOpts...),
		fmtOpts:  cfg.Format,
		timings:  cfg.Timings,
		noted:    make(map[string]bool),
	}
}

// Transpile is the single host-facing operation: it returns the
// incremental source slice for the cell, or an error whose message is the
// formatted diagnostic text, fatal to this cell only.
func (s *Session) Transpile(raw string) (string, error) {
	res, err := s.Execute(context.Background(), raw)
	if err != nil {
		return "", err
	}
	return res.Code, nil
}

// Execute runs the full transpile cycle for one cell.
func (s *Session) Execute(ctx context.Context, raw string) (Result, error) {
	var timer *observ.Timer
	if s.timings {
		timer = observ.NewTimer()
	}
	s.lastTimer = timer

	committedAtStart := s.doc.Committed()

	idx := timer.Begin("pragma")
	cleaned, ov, err := pragma.Parse(source.Normalize(raw))
	timer.End(idx, "")
	if err != nil {
		// Malformed directive value: rejected before any compile attempt.
		return Result{}, &CellError{Message: err.Error()}
	}

	idx = timer.Begin("resolve")
	set, advis := s.resolver.Resolve(ov)
	advis = append(advis, s.resolver.CheckCode(cleaned, set)...)
	timer.End(idx, "")
	s.queue(advis)

	if err := s.doc.Stage(cleaned); err != nil {
		return Result{}, err
	}

	idx = timer.Begin("compile")
	res, err := s.svc.Compile(ctx, set)
	timer.End(idx, "v"+strconv.FormatUint(uint64(s.doc.Version()), 10))
	if err != nil {
		s.doc.Rollback()
		return Result{}, fmt.Errorf("compile: %w", err)
	}

	for _, w := range res.Bag.Warnings() {
		s.queueMessage(w.Message)
	}

	if res.Bag.HasErrors() {
		// Format while the staged lines are still in the buffer, then
		// restore the last committed state untouched.
		msgs := diagfmt.FormatCell(res.Bag, s.doc, committedAtStart, s.fmtOpts)
		s.doc.Rollback()
		return Result{}, &CellError{Message: strings.Join(msgs, "\n")}
	}

	idx = timer.Begin("diff")
	slice := emitdiff.ExtractNew(s.lastEmit, res.Emission)
	timer.End(idx, strconv.Itoa(strings.Count(slice, "\n"))+" lines")

	s.doc.Commit()
	s.lastEmit = res.Emission
	s.resolver.CommitOverrides(ov)

	return Result{Code: s.flushWarnings() + slice, Async: ov.Async}, nil
}

// Committed returns the committed line count, for tests and the host UI.
func (s *Session) Committed() int {
	return s.doc.Committed()
}

// Version returns the document version.
func (s *Session) Version() uint32 {
	return s.doc.Version()
}

// ConfigPath returns the project configuration file in use, if any.
func (s *Session) ConfigPath() string {
	return s.resolver.ConfigPath()
}

// Timings returns the phase summary of the last Execute call, or "".
func (s *Session) Timings() string {
	return s.lastTimer.Summary()
}

func (s *Session) queue(advis []options.Advisory) {
	for _, a := range advis {
		s.queueMessage(a.Message)
	}
}

// queueMessage remembers an advisory for the next flush. Validation
// re-reports the same conditions on every compile, so anything already
// surfaced this session is dropped here.
func (s *Session) queueMessage(msg string) {
	if s.noted[msg] {
		return
	}
	s.noted[msg] = true
	s.warnings = append(s.warnings, msg)
}

// flushWarnings renders queued advisories as directly executable display
// statements, so they surface inline exactly once, attached to the first
// successful cell after detection.
func (s *Session) flushWarnings() string {
	if len(s.warnings) == 0 {
		return ""
	}
	var b strings.Builder
	for _, w := range s.warnings {
		fmt.Fprintf(&b, "println(%q)\n", "Warning: "+w)
	}
	s.warnings = nil
	return b.String()
}
