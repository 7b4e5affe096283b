package options

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"quill/internal/diag"
	"quill/internal/pragma"
)

// Advisory is a non-fatal warning queued by the resolver and surfaced with
// the next successful result.
type Advisory struct {
	Code    diag.Code
	Message string
}

// Resolver produces the effective option set for each compile. It loads
// quill.json once, re-reads it when its modification time changes, and
// layers permanent and per-cell pragma patches on top.
type Resolver struct {
	workdir   string
	path      string // "" when no config file was found
	fileOpts  map[string]any
	permanent map[string]any
	mtime     time.Time
	searched  bool

	warnedModule string // damper: warn once per distinct module value
}

func NewResolver(workdir string) *Resolver {
	return &Resolver{
		workdir:   workdir,
		fileOpts:  map[string]any{},
		permanent: map[string]any{},
	}
}

// ConfigPath returns the located quill.json path, or "" if none was found.
func (r *Resolver) ConfigPath() string {
	return r.path
}

// Resolve computes effective options for one cell:
//
//	defaults ∪ fileOpts ∪ permanentPatches ∪ transient
//
// with transient (this cell's pragma patches) taking highest precedence.
// Configuration trouble never fails the resolve: it comes back as
// advisories.
func (r *Resolver) Resolve(ov pragma.Overrides) (Set, []Advisory) {
	advis := r.refresh()

	eff := Defaults()
	maps.Copy(eff, r.fileOpts)
	maps.Copy(eff, r.permanent)
	for _, p := range ov.Patches {
		eff[p.Key] = p.Value
	}
	return NewSet(eff), advis
}

// CommitOverrides folds the cell's permanent patches into the session
// layer. The session calls it only after a successful commit, so a
// rejected cell leaves no trace in later cells.
func (r *Resolver) CommitOverrides(ov pragma.Overrides) {
	for _, p := range ov.Patches {
		if p.Permanent {
			r.permanent[p.Key] = p.Value
		}
	}
}

// CheckCode inspects the cleaned cell code against the effective options
// and reports interop advisories before the compile runs.
func (r *Resolver) CheckCode(code string, set Set) []Advisory {
	var advis []Advisory
	if containsImport(code) && !set.AllowImports() {
		advis = append(advis, Advisory{
			Code:    diag.CfgImportInterop,
			Message: fmt.Sprintf("cell uses an import statement but %q is disabled; the evaluator may reject it", KeyAllowImports),
		})
	}
	if m := set.Module(); m != ModuleREPL {
		if m != r.warnedModule {
			r.warnedModule = m
			advis = append(advis, Advisory{
				Code:    diag.CfgModuleSystem,
				Message: fmt.Sprintf("compiler option %q is %q; the bundled evaluator expects %q", KeyModule, m, ModuleREPL),
			})
		}
	} else {
		r.warnedModule = ""
	}
	return advis
}

// refresh locates and (re)loads the configuration file. First call
// searches upward from the working directory; later calls only stat the
// found file and reload when its mtime moved.
func (r *Resolver) refresh() []Advisory {
	if !r.searched {
		r.searched = true
		path, found, err := findConfig(r.workdir)
		if err != nil || !found {
			msg := fmt.Sprintf("no %s found; using default compiler options", ConfigFileName)
			if err != nil {
				msg = fmt.Sprintf("could not search for %s: %v; using default compiler options", ConfigFileName, err)
			}
			return []Advisory{{Code: diag.CfgMissingConfig, Message: msg}}
		}
		r.path = path
		return r.load()
	}

	if r.path == "" {
		return nil
	}
	info, err := os.Stat(r.path)
	if err != nil {
		// Файл исчез: держим предыдущие опции, предупреждаем один раз.
		r.path = ""
		return []Advisory{{
			Code:    diag.CfgMissingConfig,
			Message: fmt.Sprintf("%s disappeared; keeping previously loaded options", ConfigFileName),
		}}
	}
	if info.ModTime().Equal(r.mtime) {
		return nil
	}
	return r.load()
}

// load parses quill.json. A parse failure keeps the previous fileOpts:
// the session must stay usable even with a broken project config.
func (r *Resolver) load() []Advisory {
	info, err := os.Stat(r.path)
	if err == nil {
		r.mtime = info.ModTime()
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return []Advisory{{
			Code:    diag.CfgMalformedConfig,
			Message: fmt.Sprintf("could not read %s: %v; keeping previous options", r.path, err),
		}}
	}
	if !gjson.ValidBytes(data) {
		return []Advisory{{
			Code:    diag.CfgMalformedConfig,
			Message: fmt.Sprintf("%s is not valid JSON; keeping previous options", r.path),
		}}
	}
	co := gjson.GetBytes(data, "compilerOptions")
	if !co.Exists() || !co.IsObject() {
		return []Advisory{{
			Code:    diag.CfgMalformedConfig,
			Message: fmt.Sprintf("%s has no compilerOptions object; keeping previous options", r.path),
		}}
	}
	opts, ok := co.Value().(map[string]any)
	if !ok {
		return []Advisory{{
			Code:    diag.CfgMalformedConfig,
			Message: fmt.Sprintf("%s: compilerOptions has an unexpected shape; keeping previous options", r.path),
		}}
	}
	r.fileOpts = opts
	return nil
}

// FindConfigFile reports the quill.json governing startDir, if any.
// Exposed for the config CLI; the resolver itself searches lazily.
func FindConfigFile(startDir string) (string, bool, error) {
	return findConfig(startDir)
}

// findConfig searches for quill.json upward from startDir.
func findConfig(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// containsImport is a cheap textual check, good enough for an advisory.
// The language service does the exact parse.
func containsImport(code string) bool {
	for _, line := range strings.Split(code, "\n") {
		t := strings.TrimSpace(line)
		if t == "import" || strings.HasPrefix(t, "import ") || strings.HasPrefix(t, "import(") {
			return true
		}
	}
	return false
}
