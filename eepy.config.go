package eepy

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the file form of renderer options.
//
//	base: templates
//	encoding: utf-8
//	filter: escape
//	max_depth: 50
//	max_steps: 1000000
//	excerpt_lines: 5
//	cache:
//	  driver: filesystem
//	  dsn: /var/cache/eepy
//	vars:
//	  site: example.org
type Config struct {
	Base     string         `yaml:"base"`
	Encoding string         `yaml:"encoding"`
	Backend  string         `yaml:"backend"`
	Filter   string         `yaml:"filter"`
	MaxDepth int            `yaml:"max_depth"`
	MaxSteps uint64         `yaml:"max_steps"`
	Excerpt  int            `yaml:"excerpt_lines"`
	Cache    *CacheConfig   `yaml:"cache"`
	Vars     map[string]any `yaml:"vars"`
}

// CacheConfig selects a second-level cache driver.
type CacheConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewConfigFileError(ErrMsgConfigRead, path, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, NewConfigFileError(ErrMsgConfigParse, path, err)
	}
	return cfg, nil
}

// ParseConfig decodes YAML configuration. Unknown keys are rejected; empty input
// yields the zero configuration.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &cfg, nil
}

// Options converts the configuration into renderer options. A configured cache is
// opened here; Renderer.Close closes it.
func (c *Config) Options() ([]Option, error) {
	filter, err := FilterByName(c.Filter)
	if err != nil {
		return nil, err
	}
	if c.MaxDepth < 0 {
		return nil, NewConfigError(ErrMsgInvalidConfig, "max_depth", strconv.Itoa(c.MaxDepth))
	}
	if c.Excerpt < 0 {
		return nil, NewConfigError(ErrMsgInvalidConfig, "excerpt_lines", strconv.Itoa(c.Excerpt))
	}

	opts := []Option{
		WithBase(c.Base),
		WithEncoding(c.Encoding),
		WithBackend(c.Backend),
		WithFilter(filter),
		WithMaxSteps(c.MaxSteps),
		WithExcerptLines(c.Excerpt),
		WithVars(c.Vars),
	}
	if c.MaxDepth > 0 {
		opts = append(opts, WithMaxDepth(c.MaxDepth))
	}

	if c.Cache != nil && c.Cache.Driver != "" {
		cache, err := OpenCache(c.Cache.Driver, c.Cache.DSN)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithCache(cache))
	}
	return opts, nil
}
