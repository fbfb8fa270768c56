package types

import (
	"errors"
	"time"
)

// Config holds engine selection and tuning for Diary.Attach.
type Config struct {
	Backend         string        `json:"backend" yaml:"backend" mapstructure:"backend"`
	DataDir         string        `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`
	FlushDelay      time.Duration `json:"flush_delay" yaml:"flush_delay" mapstructure:"flush_delay"`
	DebounceDelay   time.Duration `json:"debounce_delay" yaml:"debounce_delay" mapstructure:"debounce_delay"`
	CacheTTL        time.Duration `json:"cache_ttl" yaml:"cache_ttl" mapstructure:"cache_ttl"`
	CacheMaxEntries int           `json:"cache_max_entries" yaml:"cache_max_entries" mapstructure:"cache_max_entries"`
	PageSize        int           `json:"page_size" yaml:"page_size" mapstructure:"page_size"`
	SectionBands    int           `json:"section_bands" yaml:"section_bands" mapstructure:"section_bands"`
	Timezone        string        `json:"timezone" yaml:"timezone" mapstructure:"timezone"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

// Defaults applied by WithDefaults.
const (
	DefaultFlushDelay      = 30 * time.Millisecond
	DefaultDebounceDelay   = 400 * time.Millisecond
	DefaultCacheTTL        = 5 * time.Minute
	DefaultCacheMaxEntries = 256
	DefaultPageSize        = 20
	DefaultSectionBands    = 4
)

// EntriesKey is the storage key holding the whole entries collection.
const EntriesKey = "diary:entries"

// Config validation errors.
var (
	ErrBackendEmpty         = errors.New("backend must not be empty")
	ErrBackendUnknown       = errors.New("unknown backend")
	ErrFlushDelayInvalid    = errors.New("flush delay must be positive")
	ErrDebounceDelayInvalid = errors.New("debounce delay must be positive")
	ErrCacheTTLInvalid      = errors.New("cache ttl must be positive")
	ErrCacheSizeInvalid     = errors.New("cache max entries must be positive")
	ErrPageSizeInvalid      = errors.New("page size must be positive")
	ErrSectionBandsInvalid  = errors.New("section bands must be at least 1")
	ErrTimezoneInvalid      = errors.New("unknown timezone")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite: true,
	BackendBolt:   true,
}

// WithDefaults returns a copy with every zero tuning value replaced by its
// default. Backend and DataDir are left alone.
func (c Config) WithDefaults() Config {
	if c.FlushDelay == 0 {
		c.FlushDelay = DefaultFlushDelay
	}
	if c.DebounceDelay == 0 {
		c.DebounceDelay = DefaultDebounceDelay
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.CacheMaxEntries == 0 {
		c.CacheMaxEntries = DefaultCacheMaxEntries
	}
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.SectionBands == 0 {
		c.SectionBands = DefaultSectionBands
	}
	return c
}

// Validate checks that the Config is well-formed. It returns a sentinel
// error from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if c.FlushDelay <= 0 {
		return ErrFlushDelayInvalid
	}
	if c.DebounceDelay <= 0 {
		return ErrDebounceDelayInvalid
	}
	if c.CacheTTL <= 0 {
		return ErrCacheTTLInvalid
	}
	if c.CacheMaxEntries <= 0 {
		return ErrCacheSizeInvalid
	}
	if c.PageSize <= 0 {
		return ErrPageSizeInvalid
	}
	if c.SectionBands < 1 {
		return ErrSectionBandsInvalid
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone. An empty Timezone means time.Local.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, ErrTimezoneInvalid
	}
	return loc, nil
}
