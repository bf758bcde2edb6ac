// Package config loads and saves the themesync configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"themesync/theme"
)

// FileName is the configuration file kept in the data directory.
const FileName = "themesync.config"

// EnvPrefix prefixes environment overrides, e.g. THEMESYNC_LISTEN_ADDR.
const EnvPrefix = "THEMESYNC"

type Config struct {
	DataDir    string        `json:"data_dir" mapstructure:"data_dir"`
	ListenAddr string        `json:"listen_addr" mapstructure:"listen_addr"`
	Logging    LoggingConfig `json:"logging" mapstructure:"logging"`
	Theme      ThemeConfig   `json:"theme" mapstructure:"theme"`
	System     SystemConfig  `json:"system" mapstructure:"system"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // json, text
}

// ThemeConfig mirrors theme.Config in file form.
type ThemeConfig struct {
	StorageKey                string `json:"storage_key" mapstructure:"storage_key"`
	Mode                      string `json:"mode" mapstructure:"mode"` // class, attribute, both
	Attribute                 string `json:"attribute" mapstructure:"attribute"`
	DefaultTheme              string `json:"default_theme" mapstructure:"default_theme"`
	ForcedTheme               string `json:"forced_theme,omitempty" mapstructure:"forced_theme"`
	DisableColorScheme        bool   `json:"disable_color_scheme" mapstructure:"disable_color_scheme"`
	DisableTransitionOnChange bool   `json:"disable_transition_on_change" mapstructure:"disable_transition_on_change"`
	// VariablesFile is a stylesheet with per-theme custom properties,
	// relative to the data directory unless absolute.
	VariablesFile string `json:"variables_file,omitempty" mapstructure:"variables_file"`
}

// SystemConfig controls OS color-scheme detection.
type SystemConfig struct {
	PollInterval time.Duration `json:"poll_interval" mapstructure:"poll_interval"`
	// Override pins the system preference to "dark" or "light".
	Override string `json:"override,omitempty" mapstructure:"override"`
	// Terminal also asks the controlling terminal for its background.
	Terminal bool `json:"terminal" mapstructure:"terminal"`
}

// MarshalJSON writes PollInterval in time.Duration string form so the file
// stays readable and decodes back through viper's duration hook.
func (s SystemConfig) MarshalJSON() ([]byte, error) {
	type alias SystemConfig
	return json.Marshal(struct {
		PollInterval string `json:"poll_interval"`
		alias
	}{
		PollInterval: s.PollInterval.String(),
		alias:        alias(s),
	})
}

func Default() Config {
	return Config{
		DataDir:    ".",
		ListenAddr: ":8080",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Theme: ThemeConfig{
			StorageKey:   theme.DefaultStorageKey,
			Mode:         string(theme.DefaultMode),
			Attribute:    theme.DefaultAttribute,
			DefaultTheme: string(theme.DefaultPreference),
		},
		System: SystemConfig{
			PollInterval: 5 * time.Second,
		},
	}
}

// SetDefaults registers Default() with v.
func SetDefaults(v *viper.Viper) {
	def := Default()
	v.SetDefault("listen_addr", def.ListenAddr)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("theme.storage_key", def.Theme.StorageKey)
	v.SetDefault("theme.mode", def.Theme.Mode)
	v.SetDefault("theme.attribute", def.Theme.Attribute)
	v.SetDefault("theme.default_theme", def.Theme.DefaultTheme)
	v.SetDefault("theme.forced_theme", "")
	v.SetDefault("theme.disable_color_scheme", false)
	v.SetDefault("theme.disable_transition_on_change", false)
	v.SetDefault("theme.variables_file", "")
	v.SetDefault("system.poll_interval", def.System.PollInterval)
	v.SetDefault("system.override", "")
	v.SetDefault("system.terminal", false)
}

// Load reads <dataDir>/themesync.config, applying defaults and THEMESYNC_*
// environment overrides. A missing file yields the defaults.
func Load(dataDir string) (Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("data_dir")

	v.SetConfigFile(filepath.Join(dataDir, FileName))
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if cfg.DataDir == "" {
		cfg.DataDir = dataDir
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enum fields.
func (c Config) Validate() error {
	switch theme.Mode(c.Theme.Mode) {
	case theme.ModeClass, theme.ModeAttribute, theme.ModeBoth:
	default:
		return fmt.Errorf("invalid theme mode %q", c.Theme.Mode)
	}
	if _, err := theme.ParsePreference(c.Theme.DefaultTheme); err != nil {
		return fmt.Errorf("default_theme: %w", err)
	}
	if c.Theme.ForcedTheme != "" {
		if _, err := theme.ParseTheme(c.Theme.ForcedTheme); err != nil {
			return fmt.Errorf("forced_theme: %w", err)
		}
	}
	if c.System.Override != "" {
		if _, err := theme.ParseTheme(c.System.Override); err != nil {
			return fmt.Errorf("system.override: %w", err)
		}
	}
	return nil
}

// EngineConfig converts the file form to a theme.Config, loading the
// variables file when one is configured.
func (c Config) EngineConfig() (theme.Config, error) {
	tc := theme.Config{
		StorageKey:                c.Theme.StorageKey,
		Mode:                      theme.Mode(c.Theme.Mode),
		Attribute:                 c.Theme.Attribute,
		DefaultTheme:              theme.Preference(c.Theme.DefaultTheme),
		ForcedTheme:               theme.Theme(c.Theme.ForcedTheme),
		DisableColorScheme:        c.Theme.DisableColorScheme,
		DisableTransitionOnChange: c.Theme.DisableTransitionOnChange,
	}
	if c.Theme.VariablesFile != "" {
		path := c.Theme.VariablesFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.DataDir, path)
		}
		vars, err := theme.LoadVariablesFile(path)
		if err != nil {
			return theme.Config{}, err
		}
		tc.Variables = vars
	}
	return tc.WithDefaults(), nil
}

// Save writes cfg to <cfg.DataDir>/themesync.config atomically.
func Save(cfg Config) error {
	cfgPath := filepath.Join(cfg.DataDir, FileName)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}

	tmp := cfgPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cfg); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, cfgPath)
}
