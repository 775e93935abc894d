package eepy

import (
	"go.uber.org/zap"
)

// Option is a functional option for configuring a Renderer or Template.
type Option func(*rendererConfig)

// rendererConfig holds the internal configuration shared by renderers and templates.
type rendererConfig struct {
	base     string
	cache    Cache
	filter   Filter
	vars     map[string]any
	encoding string
	backend  string
	maxDepth int
	maxSteps uint64
	excerpt  int
	logger   *zap.Logger
}

// defaultRendererConfig returns the default configuration.
func defaultRendererConfig() *rendererConfig {
	return &rendererConfig{
		filter:   IdentityFilter,
		encoding: DefaultEncoding,
		backend:  DefaultBackend,
		maxDepth: DefaultMaxDepth,
		excerpt:  DefaultExcerptLines,
	}
}

func newRendererConfig(opts []Option) *rendererConfig {
	config := defaultRendererConfig()
	for _, opt := range opts {
		opt(config)
	}
	if config.logger == nil {
		config.logger = zap.NewNop()
	}
	return config
}

// WithBase sets the directory template paths are resolved against.
// Default: "" (paths are used as given)
func WithBase(dir string) Option {
	return func(c *rendererConfig) {
		c.base = dir
	}
}

// WithCache sets the second-level cache for compiled programs.
// Default: nil (programs are only kept in process)
func WithCache(cache Cache) Option {
	return func(c *rendererConfig) {
		c.cache = cache
	}
}

// WithFilter sets the filter applied to every non-raw expression.
// Default: IdentityFilter
func WithFilter(filter Filter) Option {
	return func(c *rendererConfig) {
		if filter != nil {
			c.filter = filter
		}
	}
}

// WithVars sets variables visible to every render. Variables passed to a render
// call take precedence.
func WithVars(vars map[string]any) Option {
	return func(c *rendererConfig) {
		c.vars = vars
	}
}

// WithEncoding sets the character encoding of template files, by WHATWG label.
// Default: "utf-8"
func WithEncoding(encoding string) Option {
	return func(c *rendererConfig) {
		if encoding != "" {
			c.encoding = encoding
		}
	}
}

// WithBackend selects the script backend by name.
// Default: "starlark"
func WithBackend(name string) Option {
	return func(c *rendererConfig) {
		if name != "" {
			c.backend = name
		}
	}
}

// WithMaxDepth sets the maximum include/extends nesting depth.
// Use 0 for the default.
// Default: 100
func WithMaxDepth(depth int) Option {
	return func(c *rendererConfig) {
		c.maxDepth = depth
	}
}

// WithMaxSteps bounds the script steps of a single template execution.
// Default: 0 (unlimited)
func WithMaxSteps(steps uint64) Option {
	return func(c *rendererConfig) {
		c.maxSteps = steps
	}
}

// WithExcerptLines sets how many template lines, ending at the failing line,
// compile and render errors quote. Use 0 to quote everything above the failure.
// Default: 0
func WithExcerptLines(n int) Option {
	return func(c *rendererConfig) {
		if n >= 0 {
			c.excerpt = n
		}
	}
}

// WithLogger sets the logger.
// Default: nil (no logging)
func WithLogger(logger *zap.Logger) Option {
	return func(c *rendererConfig) {
		c.logger = logger
	}
}
