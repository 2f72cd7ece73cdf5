package capability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDefaultCatalog(t *testing.T) {
	caps := DefaultCatalog()
	require.NotEmpty(t, caps)

	seen := make(map[string]bool, len(caps))
	for _, c := range caps {
		assert.False(t, seen[c.ID], "duplicate capability %s", c.ID)
		seen[c.ID] = true
		assert.NotEmpty(t, c.Description, "capability %s has no description", c.ID)
		assert.NotEmpty(t, c.ParameterSchema, "capability %s has no parameter schema", c.ID)
	}

	for _, id := range []string{"app.launch", "app.focus", "input.type_text", "file.write", "screen.capture", "memory.recall"} {
		assert.True(t, seen[id], "default catalog is missing %s", id)
	}

	// Every schema in the built-in catalog must compile.
	_, err := NewRegistryFromCatalog(zaptest.NewLogger(t), caps)
	require.NoError(t, err)
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	content := strings.Join([]string{
		"capabilities:",
		"  - id: media.play",
		"    description: '  Play media.  '",
		"    parameters:",
		"      type: object",
		"      required: [track]",
		"      properties:",
		"        track: {type: string}",
		"  - id: media.pause",
		"    description: Pause media.",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	caps, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, caps, 2)
	assert.Equal(t, "media.play", caps[0].ID)
	assert.Equal(t, "Play media.", caps[0].Description)
	assert.JSONEq(t, `{"type":"object","required":["track"],"properties":{"track":{"type":"string"}}}`, string(caps[0].ParameterSchema))
	assert.Empty(t, caps[1].ParameterSchema)
}

func TestLoadCatalog_Errors(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read capability catalog")

	_, err = ParseCatalog([]byte("capabilities: [ {id: "))
	assert.ErrorContains(t, err, "failed to parse")

	_, err = ParseCatalog([]byte("capabilities:\n  - description: nameless\n"))
	assert.ErrorContains(t, err, "has no id")
}
