package project

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultsWhenMissing(t *testing.T) {
	m, found, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if found {
		t.Fatal("expected no manifest")
	}
	if m.Path != "" {
		t.Fatalf("expected empty path, got %q", m.Path)
	}
	if m.Config.Kernel.Prompt != "In" || !m.Config.Kernel.ShowSource {
		t.Fatalf("unexpected defaults: %+v", m.Config.Kernel)
	}
}

func TestLoad_ParsesManifest(t *testing.T) {
	dir := t.TempDir()
	body := `
[kernel]
prompt = "cell"
show_source = false

[cache]
enabled = true
dir = "/tmp/quill-cache"

[eval]
timeout_ms = 1500
`
	if err := os.WriteFile(filepath.Join(dir, ManifestName), []byte(body), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	m, found, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !found {
		t.Fatal("expected manifest found")
	}
	if m.Config.Kernel.Prompt != "cell" || m.Config.Kernel.ShowSource {
		t.Fatalf("kernel section not applied: %+v", m.Config.Kernel)
	}
	if !m.Config.Cache.Enabled || m.Config.Cache.Dir != "/tmp/quill-cache" {
		t.Fatalf("cache section not applied: %+v", m.Config.Cache)
	}
	if m.Config.Eval.TimeoutMS != 1500 {
		t.Fatalf("eval section not applied: %+v", m.Config.Eval)
	}
}

func TestLoad_FindsManifestInParent(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ManifestName), []byte("[kernel]\nprompt = \"up\"\n"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	nested := filepath.Join(root, "nb", "deep")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	m, found, err := Load(nested)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !found || m.Config.Kernel.Prompt != "up" {
		t.Fatalf("expected manifest from parent dir, got found=%v %+v", found, m.Config.Kernel)
	}
}

func TestLoad_MalformedManifestIsAnError(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ManifestName), []byte("[kernel\n"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	_, found, err := Load(dir)
	if err == nil {
		t.Fatal("expected a parse error")
	}
	if !found {
		t.Fatal("a present but broken manifest still counts as found")
	}
}
