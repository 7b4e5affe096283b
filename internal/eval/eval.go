// Package eval is the sandboxed execution collaborator: a persistent
// interpreter that is fed the incremental source slices the engine
// returns. The engine makes no assumptions about it beyond "runs plain
// source text"; this implementation keeps variable state across slices so
// each slice only needs the code of its own cell.
package eval

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// Evaluator wraps one interpreter for the lifetime of a session. The
// interpreter is not safe for concurrent Eval, so a mutex serializes
// slices; async cells queue behind whatever is running.
type Evaluator struct {
	mu      sync.Mutex
	i       *interp.Interpreter
	timeout time.Duration
}

// New creates an evaluator writing program output to stdout/stderr.
// timeout bounds a single slice; zero means unbounded.
func New(stdout, stderr io.Writer, timeout time.Duration) (*Evaluator, error) {
	i := interp.New(interp.Options{Stdout: stdout, Stderr: stderr})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("eval: loading stdlib symbols: %w", err)
	}
	return &Evaluator{i: i, timeout: timeout}, nil
}

// Eval runs one slice and returns the printable value of its final
// expression, or "" when there is none.
func (e *Evaluator) Eval(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	v, err := e.i.EvalWithContext(ctx, code)
	if err != nil {
		return "", err
	}
	if v.IsValid() && v.CanInterface() {
		return fmt.Sprintf("%v", v.Interface()), nil
	}
	return "", nil
}
