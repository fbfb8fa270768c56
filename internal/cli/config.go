package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/fooddiary/internal/paths"
	"github.com/mesh-intelligence/fooddiary/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	cfgKeyBackend         = "backend"
	cfgKeyDataDir         = "data_dir"
	cfgKeyFlushDelay      = "flush_delay"
	cfgKeyDebounceDelay   = "debounce_delay"
	cfgKeyCacheTTL        = "cache_ttl"
	cfgKeyCacheMaxEntries = "cache_max_entries"
	cfgKeyPageSize        = "page_size"
	cfgKeySectionBands    = "section_bands"
	cfgKeyTimezone        = "timezone"

	envPrefix = "FOODDIARY"
)

// configFile is the structure written to config.yaml on first run.
type configFile struct {
	Backend         string `yaml:"backend"`
	DataDir         string `yaml:"data_dir,omitempty"`
	FlushDelay      string `yaml:"flush_delay"`
	DebounceDelay   string `yaml:"debounce_delay"`
	CacheTTL        string `yaml:"cache_ttl"`
	CacheMaxEntries int    `yaml:"cache_max_entries"`
	PageSize        int    `yaml:"page_size"`
	SectionBands    int    `yaml:"section_bands"`
	Timezone        string `yaml:"timezone,omitempty"`
}

func defaultConfigFile() configFile {
	return configFile{
		Backend:         types.BackendSQLite,
		FlushDelay:      types.DefaultFlushDelay.String(),
		DebounceDelay:   types.DefaultDebounceDelay.String(),
		CacheTTL:        types.DefaultCacheTTL.String(),
		CacheMaxEntries: types.DefaultCacheMaxEntries,
		PageSize:        types.DefaultPageSize,
		SectionBands:    types.DefaultSectionBands,
	}
}

// loadConfig reads config.yaml from configDir, creating the directory and
// a default file on first run. Keys other than data_dir can also be set
// through FOODDIARY_* environment variables.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if _, err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	def := defaultConfigFile()
	v := viper.New()
	v.SetDefault(cfgKeyBackend, def.Backend)
	v.SetDefault(cfgKeyFlushDelay, def.FlushDelay)
	v.SetDefault(cfgKeyDebounceDelay, def.DebounceDelay)
	v.SetDefault(cfgKeyCacheTTL, def.CacheTTL)
	v.SetDefault(cfgKeyCacheMaxEntries, def.CacheMaxEntries)
	v.SetDefault(cfgKeyPageSize, def.PageSize)
	v.SetDefault(cfgKeySectionBands, def.SectionBands)

	v.SetEnvPrefix(envPrefix)
	for _, key := range []string{
		cfgKeyBackend, cfgKeyFlushDelay, cfgKeyDebounceDelay, cfgKeyCacheTTL,
		cfgKeyCacheMaxEntries, cfgKeyPageSize, cfgKeySectionBands, cfgKeyTimezone,
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// ensureDefaultConfigFile writes a default config.yaml if none exists. It
// reports whether a file was created.
func ensureDefaultConfigFile(configDir string) (bool, error) {
	path := filepath.Join(configDir, configFileExt)
	_, err := os.Stat(path)
	if err == nil {
		return false, nil
	}
	if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat config file: %w", err)
	}

	cfg := defaultConfigFile()
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return false, fmt.Errorf("marshal config: %w", err)
	}
	header := []byte("# diary configuration\n")
	return true, os.WriteFile(path, append(header, data...), 0o644)
}

// diaryConfig builds the backend configuration from config.yaml, the
// environment and the global flags.
func (a *app) diaryConfig() (types.Config, error) {
	v := a.settings
	dataDir, err := paths.ResolveDataDir(a.flags.dataDir, v.GetString(cfgKeyDataDir))
	if err != nil {
		return types.Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	return types.Config{
		Backend:         v.GetString(cfgKeyBackend),
		DataDir:         dataDir,
		FlushDelay:      v.GetDuration(cfgKeyFlushDelay),
		DebounceDelay:   v.GetDuration(cfgKeyDebounceDelay),
		CacheTTL:        v.GetDuration(cfgKeyCacheTTL),
		CacheMaxEntries: v.GetInt(cfgKeyCacheMaxEntries),
		PageSize:        v.GetInt(cfgKeyPageSize),
		SectionBands:    v.GetInt(cfgKeySectionBands),
		Timezone:        v.GetString(cfgKeyTimezone),
	}, nil
}
