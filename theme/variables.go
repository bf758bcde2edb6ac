package theme

import (
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// findBlockEnd finds the end of a CSS block (the position after the matching
// closing brace).
func findBlockEnd(content string, startPos int) int {
	if startPos >= len(content) {
		return len(content)
	}

	openBrace := strings.Index(content[startPos:], "{")
	if openBrace == -1 {
		return len(content)
	}
	openBrace += startPos

	depth := 1
	pos := openBrace + 1
	for pos < len(content) && depth > 0 {
		switch content[pos] {
		case '{':
			depth++
		case '}':
			depth--
		}
		pos++
	}

	return pos
}

// parseThemeMetadata reads a "Theme: dark" line from a CSS comment block.
func parseThemeMetadata(comment string) Theme {
	startIdx := strings.Index(comment, "/*")
	if startIdx == -1 {
		return ""
	}
	endIdx := strings.Index(comment[startIdx:], "*/")
	if endIdx == -1 {
		return ""
	}

	for _, line := range strings.Split(comment[startIdx+2:startIdx+endIdx], "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Theme:") {
			t, err := ParseTheme(strings.TrimPrefix(line, "Theme:"))
			if err == nil {
				return t
			}
		}
	}
	return ""
}

// selectorTheme guesses the theme a selector targets, for blocks without a
// metadata comment: [data-theme="dark"], .dark, :root.light and so on.
func selectorTheme(selector string) Theme {
	sel := strings.ToLower(selector)
	for _, t := range []Theme{Dark, Light} {
		name := string(t)
		if strings.Contains(sel, `"`+name+`"`) || strings.Contains(sel, `'`+name+`'`) ||
			strings.Contains(sel, "="+name+"]") || strings.Contains(sel, "."+name) {
			return t
		}
	}
	return ""
}

// ParseVariables extracts CSS custom properties per theme from a stylesheet.
// Each rule block is attributed to a theme either by a preceding
// "/* Theme: dark */" comment or by its selector. Only declarations whose
// name starts with "--" are kept.
func ParseVariables(css string) map[Theme]map[string]string {
	vars := make(map[Theme]map[string]string)
	content := css
	pos := 0
	pending := Theme("")

	for pos < len(content) {
		open := strings.Index(content[pos:], "{")
		comment := strings.Index(content[pos:], "/*")
		if comment != -1 && (open == -1 || comment < open) {
			commentStart := pos + comment
			commentEnd := strings.Index(content[commentStart:], "*/")
			if commentEnd == -1 {
				break
			}
			commentEnd += commentStart + 2
			if t := parseThemeMetadata(content[commentStart:commentEnd]); t != "" {
				pending = t
			}
			pos = commentEnd
			continue
		}
		if open == -1 {
			break
		}

		selector := strings.TrimSpace(content[pos : pos+open])
		blockEnd := findBlockEnd(content, pos)
		body := content[pos+open+1 : max(pos+open+1, blockEnd-1)]

		t := pending
		if t == "" {
			t = selectorTheme(selector)
		}
		pending = ""

		if t != "" {
			for name, value := range parseDeclarations(body) {
				if vars[t] == nil {
					vars[t] = make(map[string]string)
				}
				vars[t][name] = value
			}
		}
		pos = blockEnd
	}

	return vars
}

func parseDeclarations(body string) map[string]string {
	out := make(map[string]string)
	for _, decl := range strings.Split(body, ";") {
		name, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if !strings.HasPrefix(name, "--") || value == "" {
			continue
		}
		out[name] = value
	}
	return out
}

// LoadVariablesFile reads and parses a variables stylesheet from disk.
func LoadVariablesFile(path string) (map[Theme]map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read variables file: %w", err)
	}
	return parseVariablesFile(path, raw)
}

// LoadVariablesFS reads and parses a variables stylesheet from fsys.
func LoadVariablesFS(fsys fs.FS, name string) (map[Theme]map[string]string, error) {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read variables file: %w", err)
	}
	return parseVariablesFile(name, raw)
}

func parseVariablesFile(name string, raw []byte) (map[Theme]map[string]string, error) {
	vars := ParseVariables(string(raw))
	if len(vars) == 0 {
		return nil, fmt.Errorf("no theme variables found in %s", name)
	}
	return vars, nil
}
