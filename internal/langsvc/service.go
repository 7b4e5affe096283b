// Package langsvc wraps an incremental compilation service over the
// virtual document: compile the current buffer version, collect
// diagnostics, get the full emitted program.
package langsvc

import (
	"context"

	"quill/internal/diag"
	"quill/internal/options"
)

// CompileResult is produced and consumed within one transpile call.
// Emission is empty when Bag carries errors.
type CompileResult struct {
	Bag      *diag.Bag
	Emission string
}

// Service compiles the accumulated buffer against an effective option
// set. Implementations must always collect configuration diagnostics;
// type checking is the only optional layer.
type Service interface {
	Compile(ctx context.Context, set options.Set) (*CompileResult, error)
}
