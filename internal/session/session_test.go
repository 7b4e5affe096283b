package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	return New(Config{Workdir: t.TempDir()})
}

func mustTranspile(t *testing.T, s *Session, raw string) string {
	t.Helper()
	code, err := s.Transpile(raw)
	if err != nil {
		t.Fatalf("transpile %q: %v", raw, err)
	}
	return code
}

// stripWarnings drops the advisory display lines prepended to a slice.
func stripWarnings(code string) string {
	var keep []string
	for _, line := range strings.Split(code, "\n") {
		if strings.HasPrefix(line, `println("Warning: `) {
			continue
		}
		keep = append(keep, line)
	}
	return strings.Join(keep, "\n")
}

func TestSession_IncrementalSlices(t *testing.T) {
	s := newTestSession(t)

	got := stripWarnings(mustTranspile(t, s, "x := 1"))
	if got != "x := 1\n" {
		t.Fatalf("cell 1 slice: %q", got)
	}
	got = stripWarnings(mustTranspile(t, s, "y := x + 1\nprintln(y)"))
	if got != "y := x + 1\nprintln(y)\n" {
		t.Fatalf("cell 2 slice: %q", got)
	}
	if s.Committed() != 3 {
		t.Fatalf("expected 3 committed lines, got %d", s.Committed())
	}
	if s.Version() != 2 {
		t.Fatalf("expected version 2, got %d", s.Version())
	}
}

func TestSession_FailedCellLeavesNoTrace(t *testing.T) {
	s := newTestSession(t)
	mustTranspile(t, s, "x := 1")

	_, err := s.Transpile("x := \"a\"")
	var cerr *CellError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CellError, got %v", err)
	}
	if !strings.Contains(cerr.Message, "Line 1, Character") {
		t.Fatalf("expected cell-relative position, got %q", cerr.Message)
	}
	if s.Committed() != 1 {
		t.Fatalf("failed cell must not commit, got %d lines", s.Committed())
	}

	// Сессия остаётся рабочей, x всё ещё int.
	got := stripWarnings(mustTranspile(t, s, "println(x + 1)"))
	if got != "println(x + 1)\n" {
		t.Fatalf("recovery slice: %q", got)
	}
}

func TestSession_SyntaxErrorIsCellRelative(t *testing.T) {
	s := newTestSession(t)
	mustTranspile(t, s, "a := 1\nb := 2")

	_, err := s.Transpile("println(a)\nc := (")
	var cerr *CellError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CellError, got %v", err)
	}
	// Ошибка на второй строке ячейки, не на четвёртой строке буфера.
	if !strings.Contains(cerr.Message, "Line 2,") {
		t.Fatalf("expected Line 2 in %q", cerr.Message)
	}
}

func TestSession_FunctionDeclarationCells(t *testing.T) {
	s := newTestSession(t)

	got := stripWarnings(mustTranspile(t, s, "func add(a, b int) int {\n\treturn a + b\n}"))
	if got != "func add(a, b int) int {\n\treturn a + b\n}\n" {
		t.Fatalf("declaration slice: %q", got)
	}
	got = stripWarnings(mustTranspile(t, s, "println(add(1, 2))"))
	if got != "println(add(1, 2))\n" {
		t.Fatalf("call slice: %q", got)
	}
}

func TestSession_TransientPragmaScopedToCell(t *testing.T) {
	s := newTestSession(t)

	// typeCheck выключен только на эту ячейку.
	mustTranspile(t, s, "%typeCheck false\nvar bad string = 1")

	// Следующая ячейка проверяется как обычно.
	if _, err := s.Transpile("var alsoBad string = 2"); err == nil {
		t.Fatal("expected transient override to expire")
	}
}

func TestSession_PermanentPragmaPersists(t *testing.T) {
	s := newTestSession(t)
	mustTranspile(t, s, "%typeCheck! false\nvar bad string = 1")
	mustTranspile(t, s, "var alsoBad string = 2")
}

func TestSession_PermanentPragmaDroppedWithFailedCell(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.Transpile("%ignoreUnused! false\nz := ("); err == nil {
		t.Fatal("expected the cell to fail on syntax")
	}
	// Отклонённая ячейка не оставляет и своих permanent-прагм.
	mustTranspile(t, s, "unused := 1")
}

func TestSession_MalformedPragmaIsFatalToCell(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Transpile("%module {broken\nx := 1")
	var cerr *CellError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CellError, got %v", err)
	}
	if s.Committed() != 0 {
		t.Fatal("malformed pragma must reject the whole cell")
	}
}

func TestSession_ConflictWithCommittedLine(t *testing.T) {
	s := newTestSession(t)
	// Коммитим ошибку типов, пока проверка выключена.
	mustTranspile(t, s, "%typeCheck! false\nvar n int = \"oops\"")

	// Возврат проверки на одну ячейку: ошибка лежит в committed-части.
	_, err := s.Transpile("%typeCheck true\nprintln(n)")
	var cerr *CellError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CellError, got %v", err)
	}
	if !strings.Contains(cerr.Message, "conflicts with a committed line") {
		t.Fatalf("expected committed-conflict wording, got %q", cerr.Message)
	}

	// Постоянный typeCheck false всё ещё действует, сессия жива.
	mustTranspile(t, s, "println(n)")
}

func TestSession_WarningsFlushOnce(t *testing.T) {
	s := newTestSession(t)
	// Нет quill.json: advisory одной строкой перед первым успешным срезом.
	first := mustTranspile(t, s, "x := 1")
	if !strings.Contains(first, `println("Warning: `) {
		t.Fatalf("expected a warning display line, got %q", first)
	}
	second := mustTranspile(t, s, "y := 2")
	if strings.Contains(second, `println("Warning: `) {
		t.Fatalf("warning must flush once, got %q", second)
	}
}

func TestSession_PersistentConfigWarningSurfacesOnce(t *testing.T) {
	dir := t.TempDir()
	// Неизвестный ключ переживает все компиляции, но печатается один раз.
	cfg := `{"compilerOptions": {"speedy": true}}`
	if err := os.WriteFile(filepath.Join(dir, "quill.json"), []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	s := New(Config{Workdir: dir})
	first := mustTranspile(t, s, "x := 1")
	if !strings.Contains(first, "speedy") {
		t.Fatalf("expected unknown-option warning on first cell, got %q", first)
	}
	second := mustTranspile(t, s, "y := 2")
	if strings.Contains(second, "speedy") {
		t.Fatalf("unknown-option warning repeated: %q", second)
	}
	third := mustTranspile(t, s, "z := 3")
	if strings.Contains(third, `println("Warning: `) {
		t.Fatalf("no warning expected by the third cell, got %q", third)
	}
}

func TestSession_WarningsSurviveFailedCell(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.Transpile("x := ("); err == nil {
		t.Fatal("expected syntax failure")
	}
	// Advisory, замеченная при отклонённой ячейке, выходит со следующей успешной.
	got := mustTranspile(t, s, "x := 1")
	if !strings.Contains(got, `println("Warning: `) {
		t.Fatalf("expected queued warning on next success, got %q", got)
	}
}

func TestSession_AsyncSwitch(t *testing.T) {
	s := newTestSession(t)
	res, err := s.Execute(context.Background(), "%async\nx := 1")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.Async {
		t.Fatal("expected async switch on the result")
	}
}

func TestSession_ConfigFilePickedUp(t *testing.T) {
	dir := t.TempDir()
	cfg := `{"compilerOptions": {"typeCheck": false}}`
	if err := os.WriteFile(filepath.Join(dir, "quill.json"), []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	s := New(Config{Workdir: dir})
	mustTranspile(t, s, "var bad string = 1")
	if s.ConfigPath() == "" {
		t.Fatal("expected the project config to be discovered")
	}
}

func TestSession_OversizedMaxDiagnosticsStaysUsable(t *testing.T) {
	dir := t.TempDir()
	cfg := `{"compilerOptions": {"maxDiagnostics": 70000}}`
	if err := os.WriteFile(filepath.Join(dir, "quill.json"), []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	s := New(Config{Workdir: dir})
	got := stripWarnings(mustTranspile(t, s, "x := 1"))
	if got != "x := 1\n" {
		t.Fatalf("expected a normal slice, got %q", got)
	}
}

func TestSession_TimingsSummary(t *testing.T) {
	s := New(Config{Workdir: t.TempDir(), Timings: true})
	mustTranspile(t, s, "x := 1")
	sum := s.Timings()
	if !strings.Contains(sum, "compile") || !strings.Contains(sum, "diff") {
		t.Fatalf("expected phase summary, got %q", sum)
	}
}
