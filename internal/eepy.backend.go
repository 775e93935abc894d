package internal

import (
	"fmt"

	"go.uber.org/zap"
)

// Backend turns a compiled program into an executable unit.
type Backend interface {
	Name() string
	Compile(prog *Program) (Unit, error)
}

// Unit is a backend-specific executable form of one program. Units are immutable
// and safe for concurrent use; all render state lives in the RenderContext.
type Unit interface {
	Source() string
	Execute(rc *RenderContext) error
}

// ScriptError locates a backend failure at the instruction that caused it.
// Instruction is -1 when the failure cannot be attributed.
type ScriptError struct {
	Instruction int
	Cause       error
}

func (e *ScriptError) Error() string {
	return e.Cause.Error()
}

// Unwrap returns the underlying cause.
func (e *ScriptError) Unwrap() error {
	return e.Cause
}

// BackendConfig configures a script backend.
type BackendConfig struct {
	MaxSteps uint64 // 0 = unlimited
	Logger   *zap.Logger
}

// NewBackend creates the named backend.
func NewBackend(name string, cfg BackendConfig) (Backend, error) {
	switch name {
	case "", BackendStarlark:
		return NewStarlarkBackend(cfg), nil
	}
	return nil, fmt.Errorf("%s: %q", ErrMsgUnknownBackend, name)
}
