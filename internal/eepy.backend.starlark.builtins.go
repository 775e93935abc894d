package internal

import (
	"fmt"

	"go.starlark.net/lib/json"
	"go.starlark.net/lib/math"
	"go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Library module names predeclared for templates
const (
	ModuleJSON   = "json"
	ModuleMath   = "math"
	ModuleTime   = "time"
	ModuleStruct = "struct"
)

// execState is the per-execution state a thread carries for the builtins.
type execState struct {
	rc     *RenderContext
	unit   *starlarkUnit
	scopes []openScope
}

type openScope struct {
	id     int
	scope  *scopeValue
	height int
}

type builtinFunc func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

func newBuiltins() starlark.StringDict {
	fns := map[string]builtinFunc{
		BuiltinLiteral:   builtinLiteral,
		BuiltinEmit:      builtinEmit(false),
		BuiltinEmitRaw:   builtinEmit(true),
		BuiltinEnter:     builtinEnter,
		BuiltinExit:      builtinExit,
		HelperConcat:     builtinConcat,
		HelperCapture:    builtinCapture,
		HelperCapturedAs: builtinCapturedAs,
		HelperBlock:      builtinBlock,
		HelperInclude:    builtinInclude,
		HelperExtends:    builtinExtends,
		HelperCycle:      builtinCycle,
		HelperEscape:     builtinEscape,
		HelperToStr:      builtinToStr,
		HelperFilter:     builtinFilter,
		HelperTemplate:   builtinTemplateName,
	}
	dict := make(starlark.StringDict, len(fns)+4)
	for name, fn := range fns {
		dict[name] = starlark.NewBuiltin(name, fn)
	}
	dict[ModuleJSON] = json.Module
	dict[ModuleMath] = math.Module
	dict[ModuleTime] = time.Module
	dict[ModuleStruct] = starlark.NewBuiltin(ModuleStruct, starlarkstruct.Make)
	return dict
}

// stateOf returns the execution state of the thread running a builtin.
func stateOf(thread *starlark.Thread, helper string) (*execState, error) {
	if state, ok := thread.Local(ThreadLocalKey).(*execState); ok && state != nil {
		return state, nil
	}
	return nil, &MisuseError{Helper: helper, Message: ErrMsgNoRenderContext}
}

// callerGlobals returns the globals of the script function calling the builtin.
func callerGlobals(thread *starlark.Thread) starlark.StringDict {
	if thread.CallStackDepth() < 2 {
		return nil
	}
	if fn, ok := thread.DebugFrame(1).Callable().(*starlark.Function); ok {
		return fn.Globals()
	}
	return nil
}

func builtinLiteral(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	state, err := stateOf(thread, fn.Name())
	if err != nil {
		return nil, err
	}
	var i int
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &i); err != nil {
		return nil, err
	}
	insts := state.unit.prog.Instructions
	if i < 0 || i >= len(insts) || insts[i].Kind != InstructionLiteral {
		return nil, fmt.Errorf("%s: %s %d", fn.Name(), ErrMsgInvalidArgument, i)
	}
	return starlark.None, state.rc.Concat(insts[i].Text)
}

func builtinEmit(raw bool) builtinFunc {
	return func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		state, err := stateOf(thread, fn.Name())
		if err != nil {
			return nil, err
		}
		var v starlark.Value
		if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &v); err != nil {
			return nil, err
		}
		return starlark.None, state.rc.EmitExpression(toText(v), raw)
	}
}

func builtinEnter(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	state, err := stateOf(thread, KeywordWith)
	if err != nil {
		return nil, err
	}
	var id int
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &id, &v); err != nil {
		return nil, err
	}
	scope, ok := v.(*scopeValue)
	if !ok {
		return nil, &MisuseError{Helper: KeywordWith, Message: fmt.Sprintf("%s (got %s)", ErrMsgNotAScope, v.Type())}
	}
	height := state.rc.BeginCapture()
	state.scopes = append(state.scopes, openScope{id: id, scope: scope, height: height})
	return scope, nil
}

func builtinExit(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	state, err := stateOf(thread, KeywordWith)
	if err != nil {
		return nil, err
	}
	var id int
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &id); err != nil {
		return nil, err
	}
	n := len(state.scopes)
	if n == 0 || state.scopes[n-1].id != id {
		return nil, &MisuseError{Helper: KeywordWith, Message: ErrMsgScopeMismatch}
	}
	open := state.scopes[n-1]
	state.scopes = state.scopes[:n-1]

	rc := state.rc
	if open.scope.kind == scopeBlock {
		return starlark.None, rc.EndBlock(open.scope.name, open.height)
	}

	text, err := rc.EndCapture(open.height)
	if err != nil {
		return nil, err
	}
	return deliverCapture(thread, state, open.scope.sink, text)
}

// deliverCapture hands captured text to a name, a (container, name) pair or a
// callback. For a name the text is also returned so the caller can bind it.
func deliverCapture(thread *starlark.Thread, state *execState, sink starlark.Value, text string) (starlark.Value, error) {
	switch t := sink.(type) {
	case starlark.String:
		state.rc.Bind(string(t), text)
		return starlark.String(text), nil
	case starlark.Tuple:
		container, ok := t[0].(starlark.HasSetKey)
		if !ok {
			return nil, &MisuseError{Helper: HelperCapture, Message: ErrMsgInvalidContainer}
		}
		if err := container.SetKey(t[1], starlark.String(text)); err != nil {
			return nil, err
		}
		return starlark.None, nil
	case starlark.Callable:
		_, err := starlark.Call(thread, t, starlark.Tuple{starlark.String(text), &contextValue{state: state}}, nil)
		return starlark.None, err
	}
	return nil, &MisuseError{Helper: HelperCapture, Message: ErrMsgInvalidCaptureSink}
}

func builtinConcat(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	state, err := stateOf(thread, fn.Name())
	if err != nil {
		return nil, err
	}
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	return starlark.None, state.rc.Concat(toText(v))
}

func builtinCapture(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var sink starlark.Value
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &sink); err != nil {
		return nil, err
	}
	switch t := sink.(type) {
	case starlark.String, starlark.Callable:
	case starlark.Tuple:
		if len(t) != 2 {
			return nil, &MisuseError{Helper: HelperCapture, Message: ErrMsgInvalidCaptureSink}
		}
		if _, ok := t[1].(starlark.String); !ok {
			return nil, &MisuseError{Helper: HelperCapture, Message: ErrMsgInvalidCaptureSink}
		}
	default:
		return nil, &MisuseError{Helper: HelperCapture, Message: ErrMsgInvalidCaptureSink}
	}
	return &scopeValue{kind: scopeCapture, sink: sink}, nil
}

func builtinBlock(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	name := DefaultBlockName
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name?", &name); err != nil {
		return nil, err
	}
	return &scopeValue{kind: scopeBlock, name: name}, nil
}

func builtinCapturedAs(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	state, err := stateOf(thread, fn.Name())
	if err != nil {
		return nil, err
	}
	var target starlark.Value
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &target); err != nil {
		return nil, err
	}

	switch t := target.(type) {
	case starlark.String:
		if v, ok := callerGlobals(thread)[string(t)]; ok {
			return starlark.True, state.rc.Concat(toText(v))
		}
		if v, ok := state.rc.Lookup(string(t)); ok {
			return starlark.True, state.rc.Concat(ToStr(v))
		}
		return starlark.False, nil
	case starlark.Tuple:
		if len(t) == 2 {
			if m, ok := t[0].(starlark.Mapping); ok {
				v, found, err := m.Get(t[1])
				if err != nil {
					return nil, err
				}
				if !found {
					return starlark.False, nil
				}
				return starlark.True, state.rc.Concat(toText(v))
			}
		}
	}
	return nil, &MisuseError{Helper: fn.Name(), Message: ErrMsgInvalidCaptureSink}
}

func builtinInclude(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	state, err := stateOf(thread, fn.Name())
	if err != nil {
		return nil, err
	}
	var path string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, nil, 1, &path); err != nil {
		return nil, err
	}

	extra := make(map[string]any)
	for name, v := range callerGlobals(thread) {
		extra[name] = FromStarlark(v)
	}
	captureAs := ""
	for _, kv := range kwargs {
		key := string(kv[0].(starlark.String))
		if key == ArgCaptureAs {
			if s, ok := kv[1].(starlark.String); ok {
				captureAs = string(s)
				continue
			}
			if kv[1] == starlark.None {
				continue
			}
			return nil, fmt.Errorf("%s: %s must be a string", fn.Name(), ArgCaptureAs)
		}
		extra[key] = FromStarlark(kv[1])
	}

	result, err := state.rc.Include(path, extra, captureAs)
	if err != nil {
		return nil, err
	}
	if captureAs != "" {
		return starlark.String(result), nil
	}
	return starlark.None, nil
}

func builtinExtends(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	state, err := stateOf(thread, fn.Name())
	if err != nil {
		return nil, err
	}
	var path string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, nil, 1, &path); err != nil {
		return nil, err
	}
	extra := make(map[string]any, len(kwargs))
	for _, kv := range kwargs {
		extra[string(kv[0].(starlark.String))] = FromStarlark(kv[1])
	}
	return starlark.None, state.rc.Extends(path, extra)
}

func builtinCycle(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", fn.Name())
	}
	values := make([]any, len(args))
	for i, v := range args {
		values[i] = v
	}
	c, err := NewCycle(values...)
	if err != nil {
		return nil, err
	}
	return starlark.NewBuiltin(fn.Name(), func(_ *starlark.Thread, next *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackPositionalArgs(next.Name(), args, kwargs, 0); err != nil {
			return nil, err
		}
		return c.Next().(starlark.Value), nil
	}), nil
}

func builtinEscape(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	return starlark.String(EscapeXML(toText(v))), nil
}

func builtinToStr(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	return starlark.String(toText(v)), nil
}

// builtinFilter applies the filter of the running render, the same one non-raw
// expressions go through.
func builtinFilter(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	state, err := stateOf(thread, fn.Name())
	if err != nil {
		return nil, err
	}
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	return starlark.String(state.rc.Filter(toText(v))), nil
}

func builtinTemplateName(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	state, err := stateOf(thread, fn.Name())
	if err != nil {
		return nil, err
	}
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	return starlark.String(state.rc.Template), nil
}
