package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"timetable/internal/fsutil"
)

// EnvPrefix is the prefix of environment variables that override file
// values, e.g. TIMETABLE_COURSES_DIR or TIMETABLE_BAR__ITEM.
const EnvPrefix = "TIMETABLE_"

// ICSConfig describes a timetable published as an ICS feed.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for logging and as course source.
	ID string `yaml:"id" json:"id"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// BarConfig controls the status-bar presenter.
type BarConfig struct {
	// Binary is the sketchybar executable. Empty disables pushing updates.
	Binary string `yaml:"binary" json:"binary"`
	// Item is the bar item to update. If empty, $NAME is used, which is
	// what sketchybar sets when it runs a plugin script.
	Item string `yaml:"item" json:"item"`
}

// Config is the top-level application configuration.
type Config struct {
	// CoursesDir is searched recursively for *.yml / *.yaml course files.
	// Relative paths are resolved against the config file's directory.
	CoursesDir string `yaml:"courses_dir" json:"courses_dir"`

	// ICS lists optional timetable feeds whose weekly events are merged
	// with the course files.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// CacheDir holds the ICS HTTP cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// Timezone overrides the local zone (IANA name). Empty uses the system zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Listen is the HTTP listen address. Empty disables the HTTP server.
	Listen string `yaml:"listen" json:"listen"`

	// RefreshCron is a cron-style schedule string (e.g. "* * * * *")
	// used to refresh the bar in daemon mode.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	Bar BarConfig `yaml:"bar" json:"bar"`

	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		CoursesDir:  "courses",
		ICS:         []ICSConfig{},
		CacheDir:    "cache",
		RefreshCron: "* * * * *",
		Bar:         BarConfig{Binary: "sketchybar"},
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.CoursesDir == "" {
		c.CoursesDir = def.CoursesDir
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
		c.LogFormat = strings.ToLower(c.LogFormat)
	default:
		c.LogFormat = def.LogFormat
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

// Validate reports settings that would make the daemon misbehave.
func (c *Config) Validate() error {
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		return fmt.Errorf("config: invalid refresh schedule %q: %w", c.RefreshCron, err)
	}
	for i, src := range c.ICS {
		if src.URL == "" {
			return fmt.Errorf("config: ics[%d]: url is empty", i)
		}
	}
	return nil
}

// Resolve makes relative directories absolute against the directory of the
// config file at path.
func (c *Config) Resolve(path string) {
	base := filepath.Dir(path)
	if !filepath.IsAbs(c.CoursesDir) {
		c.CoursesDir = filepath.Join(base, c.CoursesDir)
	}
	if !filepath.IsAbs(c.CacheDir) {
		c.CacheDir = filepath.Join(base, c.CacheDir)
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - If the file exists, YAML is unmarshaled into Config.
//   - A .env file in the working directory is loaded if present, then
//     TIMETABLE_* variables override file values.
//   - Defaults are normalized and relative directories resolved.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	var cfg *Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First run: create default config file.
		cfg = DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.Normalize()
	cfg.Resolve(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays TIMETABLE_* environment variables onto cfg. Nested keys
// use a double underscore: TIMETABLE_BASIC_AUTH__USERNAME.
func applyEnv(cfg *Config) error {
	k := koanf.New(".")
	provider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(provider, nil); err != nil {
		return fmt.Errorf("config: env: %w", err)
	}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return fmt.Errorf("config: env: %w", err)
	}
	return nil
}

// Save writes cfg to path as YAML, atomically and with 0600 permissions
// since it may hold basic-auth credentials.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, data, 0o600)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
