package eepy

import (
	"context"
	"errors"
	"sync"

	"github.com/itsatony/go-eepy/internal"
	"go.uber.org/zap"
)

// Template is a template source that compiles once, on first use, and renders any
// number of times. A Template is safe for concurrent use.
type Template struct {
	name     string
	source   string
	text     string // source with normalized line endings, for excerpts
	renderer *Renderer

	mu   sync.Mutex
	prog *internal.Program
	unit internal.Unit
}

// NewTemplate creates a template from source. Helpers that load other templates
// resolve their paths with the same options as a Renderer would.
func NewTemplate(source string, opts ...Option) (*Template, error) {
	r, err := New(opts...)
	if err != nil {
		return nil, err
	}
	return r.Parse(source)
}

// MustNewTemplate creates a template and panics on error.
func MustNewTemplate(source string, opts ...Option) *Template {
	t, err := NewTemplate(source, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

func newTemplate(name, source string, prog *internal.Program, r *Renderer) *Template {
	return &Template{
		name:     name,
		source:   source,
		text:     internal.NormalizeNewlines(source),
		renderer: r,
		prog:     prog,
	}
}

// Name returns the template name used in error messages.
func (t *Template) Name() string {
	return t.name
}

// Source returns the template source.
func (t *Template) Source() string {
	return t.source
}

// Compile compiles the template if it has not been compiled yet. Concurrent callers
// wait for the first compilation and share its result.
func (t *Template) Compile() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.unit != nil {
		return nil
	}
	logger := t.renderer.logger

	if t.prog == nil {
		prog, err := internal.Compile(t.name, t.source, logger)
		if err != nil {
			return NewParseError(t.name, t.withExcerpt(err))
		}
		t.prog = prog
	}

	unit, err := t.renderer.backend.Compile(t.prog)
	if err != nil {
		return NewParseError(t.name, t.withExcerpt(err))
	}
	t.unit = unit

	logger.Debug(LogMsgTemplateCompiled,
		zap.String(LogFieldTemplate, t.name),
		zap.Int("instructions", len(t.prog.Instructions)))
	return nil
}

// withExcerpt quotes the template source around a compile error's line using the
// renderer's excerpt window.
func (t *Template) withExcerpt(err error) error {
	var cerr *internal.CompileError
	if errors.As(err, &cerr) && cerr.Line > 0 {
		cerr.Excerpt = internal.Excerpt(t.text, cerr.Line, t.renderer.config.excerpt)
	}
	return err
}

// Program returns the compiled instruction program.
func (t *Template) Program() (*Program, error) {
	if err := t.Compile(); err != nil {
		return nil, err
	}
	return t.prog, nil
}

// GeneratedSource returns the script the backend executes.
func (t *Template) GeneratedSource() (string, error) {
	if err := t.Compile(); err != nil {
		return "", err
	}
	return t.unit.Source(), nil
}

// Render renders the template with the configured filter.
func (t *Template) Render(ctx context.Context, vars map[string]any) (string, error) {
	return t.RenderWithFilter(ctx, vars, t.renderer.config.filter)
}

// RenderWithFilter renders the template, passing every non-raw expression through
// filter. Templates included from this render inherit the filter.
func (t *Template) RenderWithFilter(ctx context.Context, vars map[string]any, filter Filter) (string, error) {
	if err := t.Compile(); err != nil {
		return "", err
	}
	r := t.renderer
	r.logger.Debug(LogMsgRenderStart, zap.String(LogFieldTemplate, t.name))

	rc := internal.NewRenderContext(ctx, internal.RenderConfig{
		Template: t.name,
		Vars:     r.renderVars(vars),
		Filter:   filter,
		Loader:   r,
		MaxDepth: r.config.maxDepth,
		Logger:   r.logger,
	})
	result, err := t.execute(rc)
	if err != nil {
		r.logger.Debug(LogMsgRenderFailed, zap.String(LogFieldTemplate, t.name), zap.Error(err))
		return "", NewRenderError(t.name, err)
	}
	return result, nil
}

// execute runs the compiled template against rc. Errors are returned unconverted
// so nested renders chain the runtime errors of every level.
func (t *Template) execute(rc *internal.RenderContext) (string, error) {
	if err := t.Compile(); err != nil {
		return "", err
	}
	return t.renderer.executor.Execute(t.prog, t.text, t.unit, rc)
}
