package eepy

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/itsatony/go-eepy/internal"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// Renderer loads templates from files, compiles them once and renders them.
// Lookups consult the in-process map, then the second-level cache, then the file.
// A Renderer is safe for concurrent use.
type Renderer struct {
	config   *rendererConfig
	backend  internal.Backend
	executor *internal.Executor
	encoding encoding.Encoding
	logger   *zap.Logger

	mu        sync.RWMutex
	templates map[string]*Template // resolved path -> template
}

// New creates a Renderer with the given options.
func New(opts ...Option) (*Renderer, error) {
	config := newRendererConfig(opts)
	logger := config.logger

	enc, err := lookupEncoding(config.encoding)
	if err != nil {
		return nil, err
	}

	backend, err := internal.NewBackend(config.backend, internal.BackendConfig{
		MaxSteps: config.maxSteps,
		Logger:   logger,
	})
	if err != nil {
		return nil, NewConfigError(ErrMsgUnknownBackend, MetaKeyBackend, config.backend)
	}

	logger.Debug(LogMsgRendererCreated,
		zap.String(MetaKeyBackend, backend.Name()),
		zap.String(MetaKeyEncoding, config.encoding),
		zap.Bool("cache", config.cache != nil))

	return &Renderer{
		config:    config,
		backend:   backend,
		executor:  internal.NewExecutor(logger).WithExcerptLines(config.excerpt),
		encoding:  enc,
		logger:    logger,
		templates: make(map[string]*Template),
	}, nil
}

// MustNew creates a Renderer and panics on error.
func MustNew(opts ...Option) *Renderer {
	r, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return r
}

// Render renders the template at path with the configured filter.
func (r *Renderer) Render(ctx context.Context, path string, vars map[string]any) (string, error) {
	return r.RenderWithFilter(ctx, path, vars, r.config.filter)
}

// RenderWithFilter renders the template at path with filter.
func (r *Renderer) RenderWithFilter(ctx context.Context, path string, vars map[string]any, filter Filter) (string, error) {
	t, err := r.Template(ctx, path)
	if err != nil {
		return "", err
	}
	return t.RenderWithFilter(ctx, vars, filter)
}

// Parse creates a compiled template from source. Parsed templates are not cached.
func (r *Renderer) Parse(source string) (*Template, error) {
	t := newTemplate(DefaultTemplateName, source, nil, r)
	if err := t.Compile(); err != nil {
		return nil, err
	}
	return t, nil
}

// Execute parses and renders source in one step.
func (r *Renderer) Execute(ctx context.Context, source string, vars map[string]any) (string, error) {
	t, err := r.Parse(source)
	if err != nil {
		return "", err
	}
	return t.Render(ctx, vars)
}

// Clear forgets every template held in process. The second-level cache is untouched.
func (r *Renderer) Clear() {
	r.mu.Lock()
	r.templates = make(map[string]*Template)
	r.mu.Unlock()
	r.logger.Debug(LogMsgRendererCleared)
}

// Close closes the configured cache, if any.
func (r *Renderer) Close() error {
	if r.config.cache == nil {
		return nil
	}
	return r.config.cache.Close()
}

// Resolve returns the file path a template path refers to.
func (r *Renderer) Resolve(path string) string {
	if r.config.base == "" || filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(r.config.base, path)
}

// Template returns the compiled template at path.
func (r *Renderer) Template(ctx context.Context, path string) (*Template, error) {
	full := r.Resolve(path)

	r.mu.RLock()
	t, ok := r.templates[full]
	r.mu.RUnlock()
	if ok {
		r.logger.Debug(LogMsgTemplateMemoHit, zap.String(LogFieldPath, full))
		return t, nil
	}

	t, err := r.load(ctx, path, full)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.templates[full]; ok {
		return existing, nil
	}
	r.templates[full] = t
	return t, nil
}

// RenderNested renders path as a descendant of parent. Used by the include and
// extends helpers.
func (r *Renderer) RenderNested(ctx context.Context, path string, vars map[string]any, parent *RenderContext) (string, error) {
	t, err := r.Template(ctx, path)
	if err != nil {
		return "", err
	}
	child, err := parent.Child(t.name, vars)
	if err != nil {
		return "", err
	}
	return t.execute(child)
}

// load builds a template from the second-level cache when its entry is current,
// otherwise from the file.
func (r *Renderer) load(ctx context.Context, name, full string) (*Template, error) {
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NewTemplateNotFoundError(full, err)
		}
		return nil, NewLoadError(ErrMsgReadFailed, full, err)
	}
	modTime := info.ModTime()

	if t := r.fromCache(ctx, name, full, modTime); t != nil {
		return t, nil
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, NewLoadError(ErrMsgReadFailed, full, err)
	}
	source, err := r.decode(data)
	if err != nil {
		return nil, NewLoadError(ErrMsgDecodeFailed, full, err)
	}
	r.logger.Debug(LogMsgTemplateLoaded, zap.String(LogFieldPath, full))

	t := newTemplate(name, source, nil, r)
	if err := t.Compile(); err != nil {
		return nil, err
	}

	if r.config.cache != nil {
		entry := &CacheEntry{Program: t.prog, Source: source, ModTime: modTime}
		if err := r.config.cache.Set(ctx, full, entry); err != nil {
			r.logger.Warn(LogMsgCacheSetFailed, zap.String(LogFieldPath, full), zap.Error(err))
		}
	}
	return t, nil
}

// fromCache returns a template for a current cache entry, or nil. Stale entries are
// removed; cache failures are logged and treated as misses.
func (r *Renderer) fromCache(ctx context.Context, name, full string, modTime time.Time) *Template {
	cache := r.config.cache
	if cache == nil {
		return nil
	}
	entry, err := cache.Get(ctx, full)
	if err != nil {
		r.logger.Warn(LogMsgCacheGetFailed, zap.String(LogFieldPath, full), zap.Error(err))
		return nil
	}
	if entry == nil {
		return nil
	}
	if !entry.ModTime.Equal(modTime) || entry.Program == nil {
		r.logger.Debug(LogMsgCacheStale, zap.String(LogFieldPath, full))
		if err := cache.Unset(ctx, full); err != nil {
			r.logger.Warn(LogMsgCacheUnsetFailed, zap.String(LogFieldPath, full), zap.Error(err))
		}
		return nil
	}

	t := newTemplate(name, entry.Source, entry.Program, r)
	if err := t.Compile(); err != nil {
		r.logger.Debug(LogMsgCacheStale, zap.String(LogFieldPath, full), zap.Error(err))
		return nil
	}
	r.logger.Debug(LogMsgCacheHit, zap.String(LogFieldPath, full))
	return t
}

// renderVars overlays call variables on the configured common variables.
func (r *Renderer) renderVars(vars map[string]any) map[string]any {
	if len(r.config.vars) == 0 {
		return vars
	}
	out := make(map[string]any, len(r.config.vars)+len(vars))
	for k, v := range r.config.vars {
		out[k] = v
	}
	for k, v := range vars {
		out[k] = v
	}
	return out
}

func (r *Renderer) decode(data []byte) (string, error) {
	out, err := r.encoding.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// lookupEncoding resolves a WHATWG encoding label. UTF-8 input may carry a BOM.
func lookupEncoding(label string) (encoding.Encoding, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, NewConfigError(ErrMsgUnknownEncoding, MetaKeyEncoding, label)
	}
	if enc == unicode.UTF8 {
		return unicode.UTF8BOM, nil
	}
	return enc, nil
}
