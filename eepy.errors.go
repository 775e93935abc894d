package eepy

import (
	"errors"
	"strconv"

	"github.com/itsatony/go-cuserr"
	"github.com/itsatony/go-eepy/internal"
)

// Error message constants
const (
	// Compile and render errors
	ErrMsgParseFailed      = "template compilation failed"
	ErrMsgRenderFailed     = "template rendering failed"
	ErrMsgHelperMisuse     = "template helper misused"
	ErrMsgTemplateNotFound = "template not found"
	ErrMsgReadFailed       = "template could not be read"
	ErrMsgDecodeFailed     = "template could not be decoded"

	// Configuration errors
	ErrMsgUnknownEncoding = "unknown template encoding"
	ErrMsgUnknownBackend  = "unknown script backend"
	ErrMsgUnknownFilter   = "unknown filter"
	ErrMsgConfigRead      = "configuration file could not be read"
	ErrMsgConfigParse     = "configuration file could not be parsed"
	ErrMsgInvalidConfig   = "invalid configuration value"

	// Cache errors
	ErrMsgNilCacheDriver          = "cache driver is nil"
	ErrMsgDriverAlreadyRegistered = "cache driver already registered"
	ErrMsgCacheDriverNotFound     = "cache driver not found"
	ErrMsgCacheClosed             = "cache is closed"
	ErrMsgCacheNilEntry           = "cache entry is nil"
	ErrMsgCacheEmptyKey           = "cache key cannot be empty"
	ErrMsgCacheReadFailed         = "cache entry could not be read"
	ErrMsgCacheWriteFailed        = "cache entry could not be written"
	ErrMsgCacheDirFailed          = "cache directory could not be created"
	ErrMsgPostgresEmptyConnString = "postgres connection string is empty"
	ErrMsgPostgresConnectFailed   = "postgres connection failed"
	ErrMsgPostgresQueryFailed     = "postgres query failed"
	ErrMsgPostgresMigrationFailed = "postgres migration failed"
)

// Error code constants for categorization
const (
	ErrCodeParse    = "EEPY_PARSE"
	ErrCodeExec     = "EEPY_EXEC"
	ErrCodeMisuse   = "EEPY_MISUSE"
	ErrCodeNotFound = "EEPY_NOT_FOUND"
	ErrCodeCache    = "EEPY_CACHE"
	ErrCodeConfig   = "EEPY_CONFIG"
)

// Types surfaced by the compiler and runtime. Errors returned by this package wrap
// them, so errors.As reaches the line-level detail.
type (
	CompileError  = internal.CompileError
	RenderError   = internal.RenderError
	MisuseError   = internal.MisuseError
	Program       = internal.Program
	Instruction   = internal.Instruction
	RenderContext = internal.RenderContext
	Filter        = internal.Filter
)

// NewParseError converts a compilation failure into a categorized error.
func NewParseError(name string, cause error) error {
	err := cuserr.WrapStdError(cause, ErrCodeParse, ErrMsgParseFailed).
		WithMetadata(MetaKeyTemplate, name)

	var cerr *internal.CompileError
	if errors.As(cause, &cerr) {
		err = err.WithMetadata(MetaKeyLine, strconv.Itoa(cerr.Line))
		if cerr.Excerpt != "" {
			err = err.WithMetadata(MetaKeyExcerpt, cerr.Excerpt)
		}
	}
	return err
}

// NewRenderError converts a render failure into a categorized error. The line and
// excerpt are those of the outermost template.
func NewRenderError(name string, cause error) error {
	code, msg := ErrCodeExec, ErrMsgRenderFailed
	var merr *internal.MisuseError
	if errors.As(cause, &merr) {
		code, msg = ErrCodeMisuse, ErrMsgHelperMisuse
	}

	err := cuserr.WrapStdError(cause, code, msg).
		WithMetadata(MetaKeyTemplate, name)
	if merr != nil && merr.Helper != "" {
		err = err.WithMetadata(MetaKeyHelper, merr.Helper)
	}

	var rerr *internal.RenderError
	if errors.As(cause, &rerr) && rerr.Line > 0 {
		err = err.
			WithMetadata(MetaKeyLine, strconv.Itoa(rerr.Line)).
			WithMetadata(MetaKeyExcerpt, rerr.Excerpt)
	}
	return err
}

// NewTemplateNotFoundError creates an error for a template path that does not exist.
func NewTemplateNotFoundError(path string, cause error) error {
	if cause == nil {
		return cuserr.NewNotFoundError(MetaKeyTemplate, ErrMsgTemplateNotFound).
			WithMetadata(MetaKeyPath, path)
	}
	return cuserr.WrapStdError(cause, ErrCodeNotFound, ErrMsgTemplateNotFound).
		WithMetadata(MetaKeyPath, path)
}

// NewLoadError creates an error for a template file that exists but cannot be loaded.
func NewLoadError(msg, path string, cause error) error {
	return cuserr.WrapStdError(cause, ErrCodeExec, msg).
		WithMetadata(MetaKeyPath, path)
}

// NewConfigError creates a configuration error naming the offending field.
func NewConfigError(msg, field, value string) error {
	return cuserr.NewValidationError(ErrCodeConfig, msg).
		WithMetadata(MetaKeyField, field).
		WithMetadata("value", value)
}

// NewConfigFileError wraps a failure to read or decode a configuration file.
func NewConfigFileError(msg, path string, cause error) error {
	return cuserr.WrapStdError(cause, ErrCodeConfig, msg).
		WithMetadata(MetaKeyPath, path)
}

// NewCacheError creates a cache error for key, wrapping cause when present.
func NewCacheError(msg, key string, cause error) error {
	var err *cuserr.CustomError
	if cause != nil {
		err = cuserr.WrapStdError(cause, ErrCodeCache, msg)
	} else {
		err = cuserr.NewValidationError(ErrCodeCache, msg)
	}
	if key != "" {
		err = err.WithMetadata(MetaKeyPath, key)
	}
	return err
}

// NewCacheDriverNotFoundError creates an error for an unregistered cache driver.
func NewCacheDriverNotFoundError(name string) error {
	return cuserr.NewNotFoundError(MetaKeyDriver, ErrMsgCacheDriverNotFound).
		WithMetadata(MetaKeyDriver, name)
}

// NewCacheClosedError creates an error for operations on a closed cache.
func NewCacheClosedError() error {
	return cuserr.NewValidationError(ErrCodeCache, ErrMsgCacheClosed)
}
