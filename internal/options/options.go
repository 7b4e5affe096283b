// Package options resolves the effective compiler option set for one
// compile: project configuration (quill.json) layered with permanent and
// transient pragma overrides, transient winning.
package options

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"sort"

	"quill/internal/diag"
)

// ConfigFileName is the project configuration file, located by searching
// upward from the session's working directory.
const ConfigFileName = "quill.json"

// Known option keys.
const (
	KeyTypeCheck      = "typeCheck"
	KeyAllowImports   = "allowImports"
	KeyModule         = "module"
	KeyIgnoreUnused   = "ignoreUnused"
	KeyMaxDiagnostics = "maxDiagnostics"
)

// ModuleREPL is the only emission mode the bundled evaluator understands.
const ModuleREPL = "repl"

// Defaults returns the documented default option set, used when no
// quill.json is found.
func Defaults() map[string]any {
	return map[string]any{
		KeyTypeCheck:      true,
		KeyAllowImports:   true,
		KeyModule:         ModuleREPL,
		KeyIgnoreUnused:   true,
		KeyMaxDiagnostics: 20,
	}
}

// Set is the immutable effective option set for exactly one compile.
type Set struct {
	m map[string]any
}

func NewSet(m map[string]any) Set {
	return Set{m: m}
}

// Map returns a mutable copy of the underlying mapping.
func (s Set) Map() map[string]any {
	m := make(map[string]any, len(s.m))
	maps.Copy(m, s.m)
	return m
}

// Bool returns the key as a bool, falling back to def when absent or
// mistyped. Mistyped values are reported by Validate, not here.
func (s Set) Bool(key string, def bool) bool {
	if v, ok := s.m[key].(bool); ok {
		return v
	}
	return def
}

func (s Set) String(key, def string) string {
	if v, ok := s.m[key].(string); ok {
		return v
	}
	return def
}

func (s Set) Int(key string, def int) int {
	switch v := s.m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

func (s Set) TypeCheck() bool     { return s.Bool(KeyTypeCheck, true) }
func (s Set) AllowImports() bool  { return s.Bool(KeyAllowImports, true) }
func (s Set) Module() string      { return s.String(KeyModule, ModuleREPL) }
func (s Set) IgnoreUnused() bool  { return s.Bool(KeyIgnoreUnused, true) }
func (s Set) MaxDiagnostics() int { return s.Int(KeyMaxDiagnostics, 20) }

// Fingerprint returns a stable digest of the whole set, used as part of
// the language-service cache key so an option change forces a recompile.
func (s Set) Fingerprint() string {
	keys := make([]string, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%v;", k, s.m[k])
	}
	return hex.EncodeToString(h.Sum(nil)[:12])
}

var knownKinds = map[string]string{
	KeyTypeCheck:      "bool",
	KeyAllowImports:   "bool",
	KeyModule:         "string",
	KeyIgnoreUnused:   "bool",
	KeyMaxDiagnostics: "number",
}

// Validate produces the configuration diagnostics for this set. They are
// collected on every compile regardless of which checking layers run.
// Unknown keys and mistyped values are advisories: a broken option must
// not make the session unusable, the getters fall back to defaults.
func Validate(s Set) []diag.Diagnostic {
	var out []diag.Diagnostic
	keys := make([]string, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		kind, known := knownKinds[k]
		if !known {
			out = append(out, diag.Diagnostic{
				Severity: diag.SevWarning,
				Code:     diag.CfgUnknownOption,
				Message:  fmt.Sprintf("unknown compiler option %q", k),
			})
			continue
		}
		if !kindMatches(kind, s.m[k]) {
			out = append(out, diag.Diagnostic{
				Severity: diag.SevWarning,
				Code:     diag.CfgBadOptionType,
				Message:  fmt.Sprintf("compiler option %q expects a %s, got %T; using the default", k, kind, s.m[k]),
			})
		}
	}
	return out
}

func kindMatches(kind string, v any) bool {
	switch kind {
	case "bool":
		_, ok := v.(bool)
		return ok
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		switch v.(type) {
		case int, float64:
			return true
		}
	}
	return false
}
