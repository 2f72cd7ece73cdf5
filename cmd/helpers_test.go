// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/deskmind/api/schemas"
	"github.com/xkilldash9x/deskmind/internal/config"
	"github.com/xkilldash9x/deskmind/internal/mocks"
	"github.com/xkilldash9x/deskmind/internal/observability"
)

// staticProvider hands out a prepared client instead of dialing a provider.
type staticProvider struct {
	client schemas.LLMClient
	err    error
}

func (p staticProvider) Create(ctx context.Context, cfg *config.Config) (schemas.LLMClient, error) {
	return p.client, p.err
}

// executeCommand runs a fresh command tree with args and captures its output.
func executeCommand(t *testing.T, provider llmProvider, args ...string) (string, string, error) {
	t.Helper()
	return executeSessionCommand(t, provider, nil, args...)
}

// executeSessionCommand is executeCommand with the handles of session.
func executeSessionCommand(t *testing.T, provider llmProvider, session *Session, args ...string) (string, string, error) {
	t.Helper()
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	rootCmd := newRootCmd(provider, session)
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// writeFile creates name under the test's temp dir and returns its path.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// createTempConfig writes a quiet config; extra YAML is appended as-is.
func createTempConfig(t *testing.T, extra string) string {
	t.Helper()
	base := `logger:
  level: error
  format: json
`
	return writeFile(t, "config.yaml", base+extra)
}

const twoNotepads = `[
  {"id": 11, "pid": 100, "process": "notepad.exe", "title": "notes.txt - Notepad"},
  {"id": 12, "pid": 101, "process": "notepad.exe", "title": "todo.txt - Notepad"},
  {"id": 13, "pid": 200, "process": "chrome.exe", "title": "Inbox - Chrome"}
]`

// scriptedClient answers component prompts keyed on their system prompt.
type scriptedClient struct {
	*mocks.MockLLMClient
}

func newScriptedClient() scriptedClient {
	return scriptedClient{new(mocks.MockLLMClient)}
}

func (s scriptedClient) on(systemPrefix string, user func(string) bool, response string) {
	s.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return strings.HasPrefix(req.SystemPrompt, systemPrefix) && user(req.UserPrompt)
	})).Return(response, nil)
}

func (s scriptedClient) segment(text, response string) {
	s.on("You split a desktop automation request", func(u string) bool { return u == "Request: "+text }, response)
}

func (s scriptedClient) classify(description, response string) {
	s.on("You classify one desktop automation action", func(u string) bool { return u == "Action: "+description }, response)
}

func (s scriptedClient) resolve(description, response string) {
	s.on("You map one desktop automation action", func(u string) bool {
		return strings.HasPrefix(u, "Action: "+description+"\n")
	}, response)
}

func (s scriptedClient) openNotepad() {
	s.segment("open notepad", `{"multi": false, "actions": [{"description": "open notepad"}]}`)
	s.classify("open notepad", `{"category": "app_lifecycle", "confidence": 0.95}`)
	s.resolve("open notepad", `{"tool": "app.launch", "parameters": {"app_name": "notepad"}, "confidence": 0.93}`)
}
