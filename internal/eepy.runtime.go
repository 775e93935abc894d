package internal

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Filter transforms the text of every non-raw expression before it is buffered.
type Filter func(string) string

// IdentityFilter returns its input unchanged.
func IdentityFilter(s string) string { return s }

// Loader renders another template on behalf of include and extends.
type Loader interface {
	RenderNested(ctx context.Context, path string, vars map[string]any, parent *RenderContext) (string, error)
}

// Hook runs after a template finishes and may replace its result.
type Hook func(result string, rc *RenderContext) (string, error)

// RenderConfig seeds a top-level render context.
type RenderConfig struct {
	Template string
	Vars     map[string]any
	Filter   Filter
	Loader   Loader
	MaxDepth int
	Logger   *zap.Logger
}

// RenderContext is the mutable state of one template render: variables, the output
// buffer stack, the deferred hooks and the block registry shared with every template
// rendered from the same top-level call.
type RenderContext struct {
	Template string
	Vars     map[string]any
	Filter   Filter
	Loader   Loader
	Depth    int
	MaxDepth int

	ctx     context.Context
	buffers []*strings.Builder
	hooks   []Hook
	blocks  map[string]string
	logger  *zap.Logger
}

// NewRenderContext creates the context of a top-level render.
func NewRenderContext(ctx context.Context, cfg RenderConfig) *RenderContext {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Filter == nil {
		cfg.Filter = IdentityFilter
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	return &RenderContext{
		Template: cfg.Template,
		Vars:     copyVars(cfg.Vars),
		Filter:   cfg.Filter,
		Loader:   cfg.Loader,
		MaxDepth: cfg.MaxDepth,
		ctx:      ctx,
		blocks:   make(map[string]string),
		logger:   cfg.Logger,
	}
}

// Child creates the context of a nested render. The block registry is shared.
func (rc *RenderContext) Child(template string, vars map[string]any) (*RenderContext, error) {
	if rc.MaxDepth > 0 && rc.Depth+1 > rc.MaxDepth {
		return nil, &MisuseError{Helper: template, Message: ErrMsgMaxDepthExceeded}
	}
	return &RenderContext{
		Template: template,
		Vars:     copyVars(vars),
		Filter:   rc.Filter,
		Loader:   rc.Loader,
		Depth:    rc.Depth + 1,
		MaxDepth: rc.MaxDepth,
		ctx:      rc.ctx,
		blocks:   rc.blocks,
		logger:   rc.logger,
	}, nil
}

// Context returns the context the render was started with.
func (rc *RenderContext) Context() context.Context {
	return rc.ctx
}

// Logger returns the render logger.
func (rc *RenderContext) Logger() *zap.Logger {
	return rc.logger
}

// WithFilter replaces the filter for this context. Used by callers that render the
// same template with a different filter.
func (rc *RenderContext) WithFilter(f Filter) {
	if f == nil {
		f = IdentityFilter
	}
	rc.Filter = f
}

// PushBuffer makes a new empty buffer the current output sink.
func (rc *RenderContext) PushBuffer() {
	rc.buffers = append(rc.buffers, &strings.Builder{})
}

// PopBuffer removes the current buffer and returns its text.
func (rc *RenderContext) PopBuffer() (string, error) {
	n := len(rc.buffers)
	if n == 0 {
		return "", &MisuseError{Message: ErrMsgBufferUnderflow}
	}
	top := rc.buffers[n-1]
	rc.buffers = rc.buffers[:n-1]
	return top.String(), nil
}

// BufferDepth returns the height of the buffer stack.
func (rc *RenderContext) BufferDepth() int {
	return len(rc.buffers)
}

// Unwind discards buffers above height.
func (rc *RenderContext) Unwind(height int) {
	if height < 0 {
		height = 0
	}
	if len(rc.buffers) > height {
		rc.logger.Debug(LogMsgBufferStackUnwound,
			zap.String(LogFieldTemplate, rc.Template),
			zap.Int(LogFieldBuffers, len(rc.buffers)-height))
		rc.buffers = rc.buffers[:height]
	}
}

// Concat appends text to the current buffer.
func (rc *RenderContext) Concat(text string) error {
	n := len(rc.buffers)
	if n == 0 {
		return &MisuseError{Helper: HelperConcat, Message: ErrMsgBufferUnderflow}
	}
	rc.buffers[n-1].WriteString(text)
	return nil
}

// EmitExpression appends an expression result, filtered unless raw.
func (rc *RenderContext) EmitExpression(text string, raw bool) error {
	if !raw {
		text = rc.Filter(text)
	}
	return rc.Concat(text)
}

// Bind sets a template variable.
func (rc *RenderContext) Bind(name string, value any) {
	if rc.Vars == nil {
		rc.Vars = make(map[string]any)
	}
	rc.Vars[name] = value
}

// Lookup returns a template variable.
func (rc *RenderContext) Lookup(name string) (any, bool) {
	v, ok := rc.Vars[name]
	return v, ok
}

// BeginCapture opens a capture scope and returns the buffer height to close it at.
func (rc *RenderContext) BeginCapture() int {
	rc.PushBuffer()
	return len(rc.buffers)
}

// EndCapture closes the capture scope opened at height and returns the captured text.
func (rc *RenderContext) EndCapture(height int) (string, error) {
	if len(rc.buffers) != height {
		return "", &MisuseError{Helper: HelperCapture, Message: ErrMsgScopeMismatch}
	}
	return rc.PopBuffer()
}

// Capture runs fn with a fresh buffer and hands the captured text to sink.
// The buffer stack is restored on every exit path.
func (rc *RenderContext) Capture(fn func() error, sink func(string) error) error {
	base := len(rc.buffers)
	defer rc.Unwind(base)

	height := rc.BeginCapture()
	if err := fn(); err != nil {
		return err
	}
	text, err := rc.EndCapture(height)
	if err != nil {
		return err
	}
	return sink(text)
}

// BeginBlock opens the named block scope and returns the buffer height to close it at.
func (rc *RenderContext) BeginBlock() int {
	return rc.BeginCapture()
}

// EndBlock closes a block scope. When name is already registered the registered text
// is emitted and the scope's own output dropped; otherwise the output is emitted and
// registered. Registered text is never replaced.
func (rc *RenderContext) EndBlock(name string, height int) error {
	if len(rc.buffers) != height {
		return &MisuseError{Helper: HelperBlock, Message: ErrMsgScopeMismatch}
	}
	text, err := rc.PopBuffer()
	if err != nil {
		return err
	}
	if registered, ok := rc.blocks[name]; ok {
		rc.logger.Debug(LogMsgBlockClaimed, zap.String(LogFieldBlock, name))
		return rc.Concat(registered)
	}
	rc.blocks[name] = text
	rc.logger.Debug(LogMsgBlockRegistered, zap.String(LogFieldBlock, name))
	return rc.Concat(text)
}

// Block runs fn as the body of the named block.
func (rc *RenderContext) Block(name string, fn func() error) error {
	base := len(rc.buffers)
	defer rc.Unwind(base)

	height := rc.BeginBlock()
	if err := fn(); err != nil {
		return err
	}
	return rc.EndBlock(name, height)
}

// RegisteredBlock returns the text registered for a block name.
func (rc *RenderContext) RegisteredBlock(name string) (string, bool) {
	text, ok := rc.blocks[name]
	return text, ok
}

// CapturedAs emits the variable name when it is bound and reports whether it was.
func (rc *RenderContext) CapturedAs(name string) (bool, error) {
	v, ok := rc.Vars[name]
	if !ok {
		return false, nil
	}
	return true, rc.Concat(ToStr(v))
}

// Include renders path with the current variables overlaid by vars. With captureAs
// set the result is bound to that name, otherwise it is emitted.
func (rc *RenderContext) Include(path string, vars map[string]any, captureAs string) (string, error) {
	if rc.Loader == nil {
		return "", &MisuseError{Helper: HelperInclude, Message: ErrMsgNoLoader}
	}
	rc.logger.Debug(LogMsgIncludeStart,
		zap.String(LogFieldPath, path),
		zap.Int(LogFieldDepth, rc.Depth+1))

	result, err := rc.Loader.RenderNested(rc.ctx, path, mergeVars(rc.Vars, vars), rc)
	if err != nil {
		return "", err
	}
	if captureAs != "" {
		rc.Bind(captureAs, result)
		return result, nil
	}
	return result, rc.Concat(result)
}

// Extends registers a hook, ahead of any registered earlier, that replaces this
// template's result with the rendering of path. The parent sees the variables as
// they are when this template finishes, overlaid by vars.
func (rc *RenderContext) Extends(path string, vars map[string]any) error {
	if rc.Loader == nil {
		return &MisuseError{Helper: HelperExtends, Message: ErrMsgNoLoader}
	}
	extra := copyVars(vars)
	hook := func(_ string, rc *RenderContext) (string, error) {
		return rc.Loader.RenderNested(rc.ctx, path, mergeVars(rc.Vars, extra), rc)
	}
	rc.hooks = append([]Hook{hook}, rc.hooks...)
	rc.logger.Debug(LogMsgExtendsRegistered,
		zap.String(LogFieldPath, path),
		zap.Int(LogFieldHooks, len(rc.hooks)))
	return nil
}

// AddHook appends a hook to the end of the queue.
func (rc *RenderContext) AddHook(h Hook) {
	rc.hooks = append(rc.hooks, h)
}

// Finish pops the top-level buffer and runs the deferred hooks in order, each
// exactly once, threading the result through them.
func (rc *RenderContext) Finish() (string, error) {
	result, err := rc.PopBuffer()
	if err != nil {
		return "", err
	}
	for len(rc.hooks) > 0 {
		hook := rc.hooks[0]
		rc.hooks = rc.hooks[1:]
		result, err = hook(result, rc)
		if err != nil {
			rc.hooks = nil
			return "", err
		}
		rc.logger.Debug(LogMsgHookApplied, zap.String(LogFieldTemplate, rc.Template))
	}
	return result, nil
}

func copyVars(vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out
}

func mergeVars(base, overlay map[string]any) map[string]any {
	out := copyVars(base)
	for k, v := range overlay {
		out[k] = v
	}
	return out
}
