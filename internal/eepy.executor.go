package internal

import (
	"errors"

	"go.uber.org/zap"
)

// Executor runs compiled units against render contexts and maps failures back to
// template lines.
type Executor struct {
	logger       *zap.Logger
	excerptLines int
}

// NewExecutor creates a new executor.
func NewExecutor(logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug(LogMsgExecutorCreated)
	return &Executor{logger: logger, excerptLines: DefaultExcerptLines}
}

// WithExcerptLines sets how many source lines a render error excerpt carries.
// Zero keeps the whole template up to the failing line.
func (e *Executor) WithExcerptLines(n int) *Executor {
	if n < 0 {
		n = 0
	}
	e.excerptLines = n
	return e
}

// Execute renders unit into a string. The top-level buffer is pushed before the
// unit runs; on success it is popped and the deferred hooks are drained. On failure
// the buffer stack is restored and no partial output is returned.
func (e *Executor) Execute(prog *Program, source string, unit Unit, rc *RenderContext) (string, error) {
	if prog == nil || unit == nil {
		return "", &MisuseError{Message: ErrMsgNilProgram}
	}
	e.logger.Debug(LogMsgExecutorStart,
		zap.String(LogFieldTemplate, rc.Template),
		zap.Int(LogFieldDepth, rc.Depth))

	base := rc.BufferDepth()
	rc.PushBuffer()

	if err := unit.Execute(rc); err != nil {
		rc.Unwind(base)
		rerr := e.renderError(prog, source, rc, err)
		fields := []zap.Field{zap.String(LogFieldTemplate, rc.Template), zap.Error(rerr)}
		if re, ok := rerr.(*RenderError); ok && re.Line > 0 {
			fields = append(fields, zap.Int(LogFieldLine, re.Line))
		}
		e.logger.Debug(LogMsgExecutionFailed, fields...)
		return "", rerr
	}
	if rc.BufferDepth() != base+1 {
		rc.Unwind(base)
		return "", &RenderError{
			Template: rc.Template,
			Cause:    &MisuseError{Message: ErrMsgScopeUnclosed},
		}
	}

	result, err := rc.Finish()
	if err != nil {
		return "", err
	}
	e.logger.Debug(LogMsgExecutorEnd, zap.String(LogFieldTemplate, rc.Template))
	return result, nil
}

// renderError attaches the template line and excerpt of the failing instruction.
func (e *Executor) renderError(prog *Program, source string, rc *RenderContext, err error) error {
	rerr := &RenderError{Template: rc.Template, Cause: err}
	var serr *ScriptError
	if errors.As(err, &serr) {
		rerr.Cause = serr.Cause
		if serr.Instruction >= 0 && serr.Instruction < len(prog.Instructions) {
			rerr.Line = prog.Instructions[serr.Instruction].Line
			rerr.Excerpt = Excerpt(source, rerr.Line, e.excerptLines)
		}
	}
	return rerr
}
