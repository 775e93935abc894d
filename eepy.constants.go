package eepy

import (
	"time"

	"github.com/itsatony/go-eepy/internal"
)

// Version is the library version.
const Version = "0.4.0"

// Renderer defaults
const (
	DefaultEncoding     = "utf-8"
	DefaultBackend      = internal.BackendStarlark
	DefaultMaxDepth     = internal.DefaultMaxDepth
	DefaultExcerptLines = internal.DefaultExcerptLines
	DefaultTemplateName = "<string>"
)

// Filter names accepted by FilterByName
const (
	FilterNameIdentity = "identity"
	FilterNameNone     = "none"
	FilterNameEscape   = "escape"
	FilterNameXML      = "xml"
	FilterNameHTML     = "html"
)

// Cache driver names
const (
	CacheDriverMemory     = "memory"
	CacheDriverFilesystem = "filesystem"
	CacheDriverPostgres   = "postgres"
)

// Filesystem cache constants
const (
	CacheFileSuffix          = ".cache"
	CacheFileExtension       = ".json"
	CacheTempPattern         = ".eepy-*.tmp"
	FilesystemDirPermissions = 0o755
	FilesystemFilePerms      = 0o644
)

// PostgreSQL cache defaults
const (
	PostgresDefaultMaxOpenConns    = 10
	PostgresDefaultMaxIdleConns    = 2
	PostgresDefaultConnMaxLifetime = 5 * time.Minute
	PostgresDefaultConnMaxIdleTime = 5 * time.Minute
	PostgresDefaultQueryTimeout    = 10 * time.Second
	PostgresTablePrefix            = "eepy_"
)

// Metadata keys for cuserr.WithMetadata
const (
	MetaKeyTemplate = "template"
	MetaKeyLine     = "line"
	MetaKeyExcerpt  = "excerpt"
	MetaKeyPath     = "path"
	MetaKeyHelper   = "helper"
	MetaKeyDriver   = "driver"
	MetaKeyEncoding = "encoding"
	MetaKeyBackend  = "backend"
	MetaKeyFilter   = "filter"
	MetaKeyField    = "field"
)

// Log message constants
const (
	LogMsgRendererCreated  = "renderer created"
	LogMsgTemplateLoaded   = "template loaded from file"
	LogMsgTemplateMemoHit  = "template found in process cache"
	LogMsgCacheHit         = "compiled program found in cache"
	LogMsgCacheStale       = "cached program is stale, discarding"
	LogMsgCacheGetFailed   = "cache lookup failed, compiling from source"
	LogMsgCacheSetFailed   = "cache store failed"
	LogMsgCacheUnsetFailed = "cache removal failed"
	LogMsgTemplateCompiled = "template compiled"
	LogMsgRenderStart      = "rendering template"
	LogMsgRenderFailed     = "render failed"
	LogMsgRendererCleared  = "process cache cleared"
)

// Log field names
const (
	LogFieldTemplate = "template"
	LogFieldPath     = "path"
)
