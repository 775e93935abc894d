package internal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"go.uber.org/zap"
)

// DefaultUnitName names units compiled from anonymous programs.
const DefaultUnitName = "<template>"

// fileOptions enables the statement forms templates rely on: control flow at top
// level, reassignable globals, while loops, sets and recursion.
var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// StarlarkBackend executes programs with the go.starlark.net interpreter.
type StarlarkBackend struct {
	builtins starlark.StringDict
	maxSteps uint64
	logger   *zap.Logger
}

// NewStarlarkBackend creates a starlark backend.
func NewStarlarkBackend(cfg BackendConfig) *StarlarkBackend {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &StarlarkBackend{
		builtins: newBuiltins(),
		maxSteps: cfg.MaxSteps,
		logger:   cfg.Logger,
	}
}

// Name returns the backend name.
func (b *StarlarkBackend) Name() string {
	return BackendStarlark
}

// Compile lowers a program and checks the generated source for syntax errors.
// Name resolution is deferred to execution because template variables become
// module globals.
func (b *StarlarkBackend) Compile(prog *Program) (Unit, error) {
	if prog == nil {
		return nil, &MisuseError{Message: ErrMsgNilProgram}
	}
	low, err := lower(prog)
	if err != nil {
		return nil, err
	}

	name := prog.Name
	if name == "" {
		name = DefaultUnitName
	}
	unit := &starlarkUnit{
		backend: b,
		prog:    prog,
		name:    name,
		low:     low,
	}
	if _, err := fileOptions.Parse(name, unit.source(nil), 0); err != nil {
		return nil, unit.compileError(err)
	}

	b.logger.Debug(LogMsgBackendCompiled,
		zap.String(LogFieldTemplate, name),
		zap.String(LogFieldBackend, BackendStarlark),
		zap.Int(LogFieldInstructions, len(prog.Instructions)))
	return unit, nil
}

// starlarkUnit is a lowered program plus its resolved forms, one per set of
// template variable names.
type starlarkUnit struct {
	backend  *StarlarkBackend
	prog     *Program
	name     string
	low      *lowered
	resolved sync.Map // variable signature -> *starlark.Program
}

// Source returns the generated script without variable prologue.
func (u *starlarkUnit) Source() string {
	return u.source(nil)
}

func (u *starlarkUnit) source(names []string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf("%s = %s[%q]", n, BuiltinVars, n)
	}
	return strings.Join(parts, "; ") + "\n" + u.low.body
}

// program returns the resolved program for a set of variable names.
func (u *starlarkUnit) program(names []string) (*starlark.Program, error) {
	key := strings.Join(names, ",")
	if p, ok := u.resolved.Load(key); ok {
		return p.(*starlark.Program), nil
	}

	isPredeclared := func(name string) bool {
		return name == BuiltinVars || u.backend.builtins.Has(name)
	}
	_, p, err := starlark.SourceProgramOptions(fileOptions, u.name, u.source(names), isPredeclared)
	if err != nil {
		return nil, err
	}
	u.backend.logger.Debug(LogMsgBackendResolved,
		zap.String(LogFieldTemplate, u.name),
		zap.Int(LogFieldVariables, len(names)))
	actual, _ := u.resolved.LoadOrStore(key, p)
	return actual.(*starlark.Program), nil
}

// Execute runs the unit against a render context. Variables of the context become
// globals; the globals left when the script finishes are bound back into it.
func (u *starlarkUnit) Execute(rc *RenderContext) error {
	names := globalNames(rc.Vars)
	p, err := u.program(names)
	if err != nil {
		return u.scriptError(u.suggest(err, names))
	}

	vars := starlark.NewDict(len(names))
	for _, n := range names {
		v, err := ToStarlark(rc.Vars[n])
		if err != nil {
			return &ScriptError{Instruction: -1, Cause: fmt.Errorf("%s %q: %w", ErrMsgInvalidArgument, n, err)}
		}
		if err := vars.SetKey(starlark.String(n), v); err != nil {
			return &ScriptError{Instruction: -1, Cause: err}
		}
	}

	predeclared := make(starlark.StringDict, len(u.backend.builtins)+1)
	for k, v := range u.backend.builtins {
		predeclared[k] = v
	}
	predeclared[BuiltinVars] = vars

	state := &execState{rc: rc, unit: u}
	logger := rc.Logger()
	thread := &starlark.Thread{
		Name: u.name,
		Print: func(_ *starlark.Thread, msg string) {
			logger.Info(LogMsgScriptPrint,
				zap.String(LogFieldTemplate, u.name),
				zap.String(LogFieldMessage, msg))
		},
	}
	thread.SetLocal(ThreadLocalKey, state)
	if u.backend.maxSteps > 0 {
		thread.SetMaxExecutionSteps(u.backend.maxSteps)
	}
	ctx := rc.Context()
	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(context.Cause(ctx).Error())
	})
	defer stop()

	globals, err := p.Init(thread, predeclared)
	if err != nil {
		return u.scriptError(err)
	}
	if n := len(state.scopes); n > 0 {
		return &ScriptError{
			Instruction: u.low.scopes[state.scopes[n-1].id],
			Cause:       &MisuseError{Helper: KeywordWith, Message: ErrMsgScopeUnclosed},
		}
	}

	for name, v := range globals {
		rc.Bind(name, FromStarlark(v))
	}
	return nil
}

// scriptError attributes a starlark failure to the instruction that raised it.
func (u *starlarkUnit) scriptError(err error) error {
	return &ScriptError{Instruction: u.locate(err), Cause: err}
}

// compileError converts a syntax failure of the generated source.
func (u *starlarkUnit) compileError(err error) error {
	line := 0
	if i := u.locate(err); i >= 0 {
		line = u.prog.Instructions[i].Line
	}
	return &CompileError{Message: ErrMsgBackendSyntax, Template: u.prog.Name, Line: line, Cause: err}
}

// suggest appends close variable or helper names to an undefined-name failure.
func (u *starlarkUnit) suggest(err error, names []string) error {
	var resErr resolve.ErrorList
	if !errors.As(err, &resErr) || len(resErr) == 0 {
		return err
	}
	name, ok := strings.CutPrefix(resErr[0].Msg, undefinedPrefix)
	if !ok {
		return err
	}
	candidates := append(append([]string(nil), names...), u.backend.builtins.Keys()...)
	hint := FormatSuggestions(SimilarNames(name, candidates, MaxNameSuggestions))
	if hint == "" {
		return err
	}
	return fmt.Errorf("%w%s", err, hint)
}

func (u *starlarkUnit) locate(err error) int {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		for i := len(evalErr.CallStack) - 1; i >= 0; i-- {
			pos := evalErr.CallStack[i].Pos
			if pos.Filename() == u.name {
				return u.low.instructionAt(int(pos.Line))
			}
		}
	}
	var synErr syntax.Error
	if errors.As(err, &synErr) {
		return u.low.instructionAt(int(synErr.Pos.Line))
	}
	var resErr resolve.ErrorList
	if errors.As(err, &resErr) && len(resErr) > 0 {
		return u.low.instructionAt(int(resErr[0].Pos.Line))
	}
	return -1
}

// globalNames returns the sorted variable names that can be bound as globals.
func globalNames(vars map[string]any) []string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		if isGlobalName(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func isGlobalName(name string) bool {
	if name == "" || identPattern.FindString(name) != name {
		return false
	}
	if strings.HasPrefix(name, "__") || reservedNames[name] || syntaxKeywords[name] {
		return false
	}
	return true
}

// reservedNames cannot be shadowed by template variables.
var reservedNames = map[string]bool{
	HelperConcat:     true,
	HelperCapture:    true,
	HelperCapturedAs: true,
	HelperBlock:      true,
	HelperInclude:    true,
	HelperExtends:    true,
	HelperCycle:      true,
	HelperEscape:     true,
	HelperToStr:      true,
	HelperFilter:     true,
	HelperTemplate:   true,
}

var syntaxKeywords = map[string]bool{
	"and": true, "break": true, "continue": true, "def": true, "elif": true,
	"else": true, "for": true, "if": true, "in": true, "lambda": true,
	"load": true, "not": true, "or": true, "pass": true, "return": true,
	"while": true, "as": true, "assert": true, "async": true, "await": true,
	"class": true, "del": true, "except": true, "finally": true, "from": true,
	"global": true, "import": true, "is": true, "nonlocal": true, "raise": true,
	"try": true, "with": true, "yield": true, "None": true, "True": true, "False": true,
}
