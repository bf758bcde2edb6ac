package theme

import (
	"errors"
	"fmt"
	"strings"
)

// Theme is a concrete appearance. It is never "system".
type Theme string

const (
	Light Theme = "light"
	Dark  Theme = "dark"
)

// Preference is the user-facing choice, which may defer to the OS.
type Preference string

const (
	PreferenceLight  Preference = "light"
	PreferenceDark   Preference = "dark"
	PreferenceSystem Preference = "system"
)

// Source records which signal produced the current resolution.
type Source string

const (
	SourceForced  Source = "forced"
	SourceStorage Source = "storage"
	SourceDefault Source = "default"
	SourceSystem  Source = "system"
)

// Mode selects how a resolved theme is written to the document root.
type Mode string

const (
	ModeClass     Mode = "class"
	ModeAttribute Mode = "attribute"
	ModeBoth      Mode = "both"
)

var (
	// ErrInvalidPreference is returned when a string is not light, dark or system.
	ErrInvalidPreference = errors.New("invalid theme preference")
	// ErrInvalidTheme is returned when a string is not light or dark.
	ErrInvalidTheme = errors.New("invalid theme")
)

// Valid reports whether t is light or dark.
func (t Theme) Valid() bool {
	return t == Light || t == Dark
}

// Opposite returns the other concrete theme.
func (t Theme) Opposite() Theme {
	if t == Dark {
		return Light
	}
	return Dark
}

// Preference returns t as an explicit preference.
func (t Theme) Preference() Preference {
	return Preference(t)
}

// Valid reports whether p is light, dark or system.
func (p Preference) Valid() bool {
	switch p {
	case PreferenceLight, PreferenceDark, PreferenceSystem:
		return true
	default:
		return false
	}
}

// ParsePreference converts a stored or user-supplied string to a Preference.
func ParsePreference(s string) (Preference, error) {
	p := Preference(strings.TrimSpace(s))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPreference, s)
	}
	return p, nil
}

// ParseTheme converts a string to a concrete Theme.
func ParseTheme(s string) (Theme, error) {
	t := Theme(strings.TrimSpace(s))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTheme, s)
	}
	return t, nil
}

// State is the engine's resolution result.
type State struct {
	Preference    Preference
	ResolvedTheme Theme
	Source        Source
}

// Snapshot is an immutable point-in-time copy of engine state.
// Holders must not modify it.
type Snapshot struct {
	Preference    Preference `json:"theme" yaml:"theme"`
	ResolvedTheme Theme      `json:"resolvedTheme" yaml:"resolvedTheme"`
	SystemTheme   Theme      `json:"systemTheme" yaml:"systemTheme"`
	Source        Source     `json:"source" yaml:"source"`
}

// Default configuration values.
const (
	DefaultStorageKey = "theme-watcher"
	DefaultAttribute  = "data-theme"
	DefaultMode       = ModeAttribute
	DefaultPreference = PreferenceSystem
)

// Config describes one mount of the engine. It is replaced wholesale on
// every Mount and Configure; zero fields take the package defaults.
type Config struct {
	StorageKey   string
	Mode         Mode
	Attribute    string
	DefaultTheme Preference
	// Variables holds CSS custom properties per theme, e.g. "--background".
	Variables                 map[Theme]map[string]string
	DisableColorScheme        bool
	DisableTransitionOnChange bool
	// ForcedTheme overrides every other signal while set.
	ForcedTheme Theme
}

// DefaultConfig returns the configuration used before any mount.
func DefaultConfig() Config {
	return Config{
		StorageKey:   DefaultStorageKey,
		Mode:         DefaultMode,
		Attribute:    DefaultAttribute,
		DefaultTheme: DefaultPreference,
	}
}

// WithDefaults returns c with empty or invalid fields replaced by defaults.
// It never consults any previously active configuration.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if strings.TrimSpace(c.StorageKey) == "" {
		c.StorageKey = def.StorageKey
	}
	switch c.Mode {
	case ModeClass, ModeAttribute, ModeBoth:
	default:
		c.Mode = def.Mode
	}
	if strings.TrimSpace(c.Attribute) == "" {
		c.Attribute = def.Attribute
	}
	if !c.DefaultTheme.Valid() {
		c.DefaultTheme = def.DefaultTheme
	}
	if c.ForcedTheme != "" && !c.ForcedTheme.Valid() {
		c.ForcedTheme = ""
	}
	if c.Variables != nil {
		vars := make(map[Theme]map[string]string, len(c.Variables))
		for t, kv := range c.Variables {
			inner := make(map[string]string, len(kv))
			for k, v := range kv {
				inner[k] = v
			}
			vars[t] = inner
		}
		c.Variables = vars
	}
	return c
}
