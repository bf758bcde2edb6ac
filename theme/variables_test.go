package theme

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleVariables = `
/*
 * Theme: light
 * Palette: paper
 */
:root {
  --background: #ffffff;
  --foreground: #111111;
  color: black;
}

/* Theme: dark */
:root {
  --background: #0b0b0b;
  --foreground: #eeeeee;
}

[data-theme="dark"] .card {
  --card-border: #333;
}

.unrelated { --ignored: 1; }
`

func TestParseVariables(t *testing.T) {
	vars := ParseVariables(sampleVariables)

	assert.Equal(t, map[string]string{
		"--background": "#ffffff",
		"--foreground": "#111111",
	}, vars[Light])
	assert.Equal(t, map[string]string{
		"--background":  "#0b0b0b",
		"--foreground":  "#eeeeee",
		"--card-border": "#333",
	}, vars[Dark])
	assert.Len(t, vars, 2)
}

func TestParseVariables_SelectorThemes(t *testing.T) {
	vars := ParseVariables(`:root.light{--a:1} html.dark { --a: 2 } [data-mode='dark'] { --b: 3; }`)

	assert.Equal(t, "1", vars[Light]["--a"])
	assert.Equal(t, "2", vars[Dark]["--a"])
	assert.Equal(t, "3", vars[Dark]["--b"])
}

func TestParseVariables_Empty(t *testing.T) {
	assert.Empty(t, ParseVariables(""))
	assert.Empty(t, ParseVariables("body { color: red; }"))
}

func TestLoadVariablesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "variables.css")
	require.NoError(t, os.WriteFile(path, []byte(sampleVariables), 0o644))

	vars, err := LoadVariablesFile(path)
	require.NoError(t, err)
	assert.Equal(t, "#0b0b0b", vars[Dark]["--background"])

	_, err = LoadVariablesFile(filepath.Join(dir, "missing.css"))
	assert.Error(t, err)
}

func TestLoadVariablesFS(t *testing.T) {
	fsys := fstest.MapFS{
		"themes/site.css":  {Data: []byte(sampleVariables)},
		"themes/plain.css": {Data: []byte("body { margin: 0 }")},
	}

	vars, err := LoadVariablesFS(fsys, "themes/site.css")
	require.NoError(t, err)
	assert.Equal(t, "#ffffff", vars[Light]["--background"])

	_, err = LoadVariablesFS(fsys, "themes/plain.css")
	assert.ErrorContains(t, err, "no theme variables found")
}
