package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"themesync/document"
	"themesync/theme"
)

func testState() (*theme.Snapshot, *document.Root) {
	doc := document.New()
	theme.Apply(doc, theme.Dark, theme.DefaultConfig(), nil, 0)
	snap := &theme.Snapshot{
		Preference:    theme.PreferenceSystem,
		ResolvedTheme: theme.Dark,
		SystemTheme:   theme.Dark,
		Source:        theme.SourceSystem,
	}
	return snap, doc
}

func TestPrintState_JSON(t *testing.T) {
	snap, doc := testState()
	var buf bytes.Buffer
	require.NoError(t, printState(&buf, "json", snap, doc))

	var out struct {
		Snapshot theme.Snapshot `json:"snapshot"`
		Document document.State `json:"document"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, *snap, out.Snapshot)
	assert.Equal(t, "dark", out.Document.Attributes["data-theme"])
}

func TestPrintState_YAML(t *testing.T) {
	snap, doc := testState()
	var buf bytes.Buffer
	require.NoError(t, printState(&buf, "yaml", snap, doc))

	var out struct {
		Snapshot theme.Snapshot `yaml:"snapshot"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, *snap, out.Snapshot)
}

func TestPrintState_Text(t *testing.T) {
	snap, doc := testState()
	var buf bytes.Buffer
	require.NoError(t, printState(&buf, "text", snap, doc))

	assert.Contains(t, buf.String(), "source=system")
	assert.Contains(t, buf.String(), `data-theme="dark"`)
}

func TestPrintState_UnknownFormat(t *testing.T) {
	snap, doc := testState()
	assert.Error(t, printState(&bytes.Buffer{}, "xml", snap, doc))
}
