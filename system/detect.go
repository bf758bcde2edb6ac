// Package system detects the operating system's color-scheme preference and
// reports when it changes.
package system

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// EnvVar overrides detection when set to "dark" or "light".
const EnvVar = "THEMESYNC_COLOR_SCHEME"

const commandTimeout = 2 * time.Second

// Detector reports the color scheme from one source.
type Detector interface {
	Name() string
	// Detect returns whether dark is preferred and whether detection
	// succeeded.
	Detect() (dark bool, ok bool)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc struct {
	ID string
	Fn func() (bool, bool)
}

// Name returns the detector name.
func (d DetectorFunc) Name() string { return d.ID }

// Detect calls Fn.
func (d DetectorFunc) Detect() (bool, bool) { return d.Fn() }

// Chain asks each detector in order and uses the first answer.
type Chain []Detector

// Detect returns the first successful detection, or light.
func (c Chain) Detect() (dark bool, source string) {
	for _, d := range c {
		if d == nil {
			continue
		}
		if dark, ok := d.Detect(); ok {
			return dark, d.Name()
		}
	}
	return false, ""
}

// PrefersDark reports the first successful detection.
func (c Chain) PrefersDark() bool {
	dark, _ := c.Detect()
	return dark
}

// DefaultChain returns the detectors for the current platform. The terminal
// detector queries the controlling terminal and is only included when asked
// for.
func DefaultChain(override string, terminal bool) Chain {
	chain := Chain{Override(override), Env()}
	switch runtime.GOOS {
	case "darwin":
		chain = append(chain, MacOS())
	case "linux", "freebsd", "openbsd":
		chain = append(chain, GNOME())
	}
	if terminal {
		chain = append(chain, Terminal())
	}
	return chain
}

// Override detects from a fixed "dark" or "light" value.
func Override(value string) Detector {
	return DetectorFunc{ID: "override", Fn: func() (bool, bool) {
		return parseScheme(value)
	}}
}

// Env detects from the EnvVar environment variable.
func Env() Detector {
	return DetectorFunc{ID: "env", Fn: func() (bool, bool) {
		return parseScheme(os.Getenv(EnvVar))
	}}
}

// MacOS reads AppleInterfaceStyle. A missing key means light.
func MacOS() Detector {
	return DetectorFunc{ID: "macos", Fn: func() (bool, bool) {
		out, err := run("defaults", "read", "-g", "AppleInterfaceStyle")
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return false, true
			}
			return false, false
		}
		return strings.TrimSpace(out) == "Dark", true
	}}
}

// GNOME reads org.gnome.desktop.interface color-scheme.
func GNOME() Detector {
	return DetectorFunc{ID: "gnome", Fn: func() (bool, bool) {
		out, err := run("gsettings", "get", "org.gnome.desktop.interface", "color-scheme")
		if err != nil {
			return false, false
		}
		v := strings.Trim(strings.TrimSpace(out), "'")
		switch v {
		case "prefer-dark":
			return true, true
		case "prefer-light", "default":
			return false, true
		default:
			return false, false
		}
	}}
}

// Terminal asks the terminal for its background color.
func Terminal() Detector {
	return DetectorFunc{ID: "terminal", Fn: func() (bool, bool) {
		return lipgloss.HasDarkBackground(), true
	}}
}

func parseScheme(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "dark":
		return true, true
	case "light":
		return false, true
	default:
		return false, false
	}
}

func run(name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, name, args...).Output()
	return string(out), err
}
