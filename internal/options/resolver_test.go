package options

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"quill/internal/diag"
	"quill/internal/pragma"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestResolve_DefaultsWhenMissing(t *testing.T) {
	r := NewResolver(t.TempDir())
	set, advis := r.Resolve(pragma.Overrides{})

	if !set.TypeCheck() || !set.AllowImports() || set.Module() != ModuleREPL {
		t.Fatalf("expected documented defaults, got %v", set.Map())
	}
	if len(advis) != 1 || advis[0].Code != diag.CfgMissingConfig {
		t.Fatalf("expected one missing-config advisory, got %+v", advis)
	}

	// Advisory is one-shot: the next resolve is quiet.
	_, advis = r.Resolve(pragma.Overrides{})
	if len(advis) != 0 {
		t.Fatalf("expected no advisory on second resolve, got %+v", advis)
	}
}

func TestResolve_LoadsConfigFromParentDir(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `{"compilerOptions": {"typeCheck": false}}`)
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("failed to create nested dir: %v", err)
	}

	r := NewResolver(nested)
	set, advis := r.Resolve(pragma.Overrides{})
	if len(advis) != 0 {
		t.Fatalf("expected no advisories, got %+v", advis)
	}
	if set.TypeCheck() {
		t.Fatal("expected typeCheck false from config file")
	}
	if r.ConfigPath() == "" {
		t.Fatal("expected config path recorded")
	}
}

func TestResolve_MalformedConfigKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"compilerOptions": {"typeCheck": false}}`)

	r := NewResolver(dir)
	set, _ := r.Resolve(pragma.Overrides{})
	if set.TypeCheck() {
		t.Fatal("expected typeCheck false from initial config")
	}

	// Ломаем файл и сдвигаем mtime, чтобы форсировать перечитывание.
	if err := os.WriteFile(path, []byte(`{broken`), 0o644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("failed to bump mtime: %v", err)
	}

	set, advis := r.Resolve(pragma.Overrides{})
	if set.TypeCheck() {
		t.Fatal("expected previous options kept after parse failure")
	}
	if len(advis) != 1 || advis[0].Code != diag.CfgMalformedConfig {
		t.Fatalf("expected malformed-config advisory, got %+v", advis)
	}
}

func TestResolve_ReloadOnMTimeChange(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"compilerOptions": {"maxDiagnostics": 3}}`)

	r := NewResolver(dir)
	set, _ := r.Resolve(pragma.Overrides{})
	if set.MaxDiagnostics() != 3 {
		t.Fatalf("expected maxDiagnostics 3, got %d", set.MaxDiagnostics())
	}

	if err := os.WriteFile(path, []byte(`{"compilerOptions": {"maxDiagnostics": 7}}`), 0o644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("failed to bump mtime: %v", err)
	}

	set, _ = r.Resolve(pragma.Overrides{})
	if set.MaxDiagnostics() != 7 {
		t.Fatalf("expected reload to pick up 7, got %d", set.MaxDiagnostics())
	}
}

func TestResolve_TransientBeatsPermanentBeatsBase(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `{"compilerOptions": {"module": "file"}}`)

	r := NewResolver(dir)
	perm := pragma.Overrides{Patches: []pragma.Patch{{Key: KeyModule, Value: "perm", Permanent: true}}}
	set, _ := r.Resolve(perm)
	if set.Module() != "perm" {
		t.Fatalf("expected permanent patch visible in its own cell, got %q", set.Module())
	}
	r.CommitOverrides(perm)

	// Следующая ячейка: permanent слой поверх base.
	set, _ = r.Resolve(pragma.Overrides{})
	if set.Module() != "perm" {
		t.Fatalf("expected permanent patch to persist, got %q", set.Module())
	}

	// Transient поверх permanent, и только на одну ячейку.
	trans := pragma.Overrides{Patches: []pragma.Patch{{Key: KeyModule, Value: "once"}}}
	set, _ = r.Resolve(trans)
	if set.Module() != "once" {
		t.Fatalf("expected transient to win, got %q", set.Module())
	}
	r.CommitOverrides(trans)

	set, _ = r.Resolve(pragma.Overrides{})
	if set.Module() != "perm" {
		t.Fatalf("expected transient discarded after its cell, got %q", set.Module())
	}
}

func TestCommitOverrides_SkippedPatchLeavesNoTrace(t *testing.T) {
	r := NewResolver(t.TempDir())
	ov := pragma.Overrides{Patches: []pragma.Patch{{Key: KeyTypeCheck, Value: false, Permanent: true}}}
	if set, _ := r.Resolve(ov); set.TypeCheck() {
		t.Fatal("expected patch visible within its own cell")
	}
	// Сессия НЕ вызывает CommitOverrides для отклонённой ячейки.
	set, _ := r.Resolve(pragma.Overrides{})
	if !set.TypeCheck() {
		t.Fatalf("expected default typeCheck after rejected cell, got %v", set.Map())
	}
}

func TestCheckCode_ImportAdvisory(t *testing.T) {
	r := NewResolver(t.TempDir())
	set := NewSet(map[string]any{KeyAllowImports: false})
	advis := r.CheckCode("import \"fmt\"\nfmt.Println(1)", set)
	if len(advis) != 1 || advis[0].Code != diag.CfgImportInterop {
		t.Fatalf("expected import-interop advisory, got %+v", advis)
	}

	advis = r.CheckCode("x := 1", set)
	if len(advis) != 0 {
		t.Fatalf("expected no advisory without imports, got %+v", advis)
	}
}

func TestCheckCode_ModuleAdvisoryOncePerValue(t *testing.T) {
	r := NewResolver(t.TempDir())
	set := NewSet(map[string]any{KeyModule: "commonjs"})

	advis := r.CheckCode("x := 1", set)
	if len(advis) != 1 || advis[0].Code != diag.CfgModuleSystem {
		t.Fatalf("expected module advisory, got %+v", advis)
	}
	advis = r.CheckCode("y := 2", set)
	if len(advis) != 0 {
		t.Fatalf("expected advisory damped on repeat, got %+v", advis)
	}

	// Возврат к repl и новое значение — предупреждаем снова.
	_ = r.CheckCode("z := 3", NewSet(map[string]any{KeyModule: ModuleREPL}))
	advis = r.CheckCode("w := 4", set)
	if len(advis) != 1 {
		t.Fatalf("expected advisory re-armed, got %+v", advis)
	}
}

func TestValidate_UnknownAndMistyped(t *testing.T) {
	set := NewSet(map[string]any{
		"mystery":    1,
		KeyTypeCheck: "yes",
		KeyModule:    ModuleREPL,
	})
	ds := Validate(set)
	if len(ds) != 2 {
		t.Fatalf("expected 2 config diagnostics, got %+v", ds)
	}
	for _, d := range ds {
		if d.Severity != diag.SevWarning {
			t.Fatalf("config diagnostics must be advisories, got %v", d.Severity)
		}
	}
	// Mistyped value falls back to the default.
	if !set.TypeCheck() {
		t.Fatal("expected mistyped typeCheck to fall back to default true")
	}
}

func TestSet_FingerprintStable(t *testing.T) {
	a := NewSet(map[string]any{"a": 1, "b": true})
	b := NewSet(map[string]any{"b": true, "a": 1})
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("expected order-independent fingerprint")
	}
	c := NewSet(map[string]any{"a": 2, "b": true})
	if a.Fingerprint() == c.Fingerprint() {
		t.Fatal("expected fingerprint to change with values")
	}
}
