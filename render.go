package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"themesync/document"
	"themesync/theme"
)

var (
	darkBadge  = lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("#EAF1FB")).Background(lipgloss.Color("#163A63"))
	lightBadge = lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("#1A1A1A")).Background(lipgloss.Color("#F2F2F2"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

func renderSnapshot(s *theme.Snapshot) string {
	badge := lightBadge
	if s.ResolvedTheme == theme.Dark {
		badge = darkBadge
	}
	return fmt.Sprintf("%s preference=%s source=%s %s",
		badge.Render(string(s.ResolvedTheme)),
		s.Preference,
		s.Source,
		dimStyle.Render("system="+string(s.SystemTheme)),
	)
}

type stateOutput struct {
	Snapshot *theme.Snapshot `json:"snapshot" yaml:"snapshot"`
	Document document.State  `json:"document" yaml:"document"`
}

func printState(w io.Writer, format string, snap *theme.Snapshot, doc *document.Root) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stateOutput{Snapshot: snap, Document: doc.State()})
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(stateOutput{Snapshot: snap, Document: doc.State()}); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		fmt.Fprintln(w, renderSnapshot(snap))
		fmt.Fprintln(w, dimStyle.Render(doc.String()))
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
