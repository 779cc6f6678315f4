package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movinture/latent-logic/comparison"
	"github.com/movinture/latent-logic/config"
)

const answer = "Times Square is at 40.758 N, 73.9855 W."

// chatHandler serves blocking and streaming chat completions with a fixed
// answer.
func chatHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]interface{}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("request body is not JSON: %v", err)
		}
		if stream, _ := req["stream"].(bool); stream {
			w.Header().Set("Content-Type", "text/event-stream")
			chunk := `data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"content":%q},"finish_reason":%s}]}` + "\n\n"
			fmt.Fprintf(w, chunk, answer, "null")
			fmt.Fprintf(w, chunk, "", `"stop"`)
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": %q}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`, answer)
	}
}

func geocodeHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"OK","results":[{"geometry":{"location":{"lat":40.758,"lng":-73.9855}}}]}`)
}

// setup writes a config and prompt set wired to local servers and returns
// the config path and output directory.
func setup(t *testing.T) (string, string) {
	t.Helper()
	chat := httptest.NewServer(chatHandler(t))
	t.Cleanup(chat.Close)
	geo := httptest.NewServer(http.HandlerFunc(geocodeHandler))
	t.Cleanup(geo.Close)

	dir := t.TempDir()
	out := filepath.Join(dir, "results")
	prompts := filepath.Join(dir, "prompts.yaml")
	require.NoError(t, os.WriteFile(prompts, []byte(`
version: v1
prompts:
  - id: where_ts
    type: location
    text: Where is Times Square?
    query: Times Square, New York
`), 0o644))

	cfgPath := filepath.Join(dir, "latentlogic.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`
output_dir: %s
prompts: %s
models: [gpt-4o]
provider:
  api_key: test-key
  base_url: %s
  retry:
    max_retries: 0
canonical:
  google_api_key: test-key
  geocode_url: %s
logging:
  level: error
`, out, prompts, chat.URL, geo.URL)), 0o644))
	return cfgPath, out
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestCanonicalRunCompareRecords(t *testing.T) {
	cfgPath, out := setup(t)

	got, err := execute(t, "canonical", "--config", cfgPath)
	require.NoError(t, err, got)
	assert.Contains(t, got, "entries: 1, failures: 0")
	assert.Contains(t, got, filepath.Join(out, "canonical", "canonical_v1_"))

	got, err = execute(t, "run", "--config", cfgPath, "--framework", "scratch", "--run-group", "rg1")
	require.NoError(t, err, got)
	assert.Contains(t, got, "units: 1  valid: 1  invalid: 0  unverified: 0  errors: 0")
	assert.FileExists(t, filepath.Join(out, "rg1", "scratch", "gpt-4o", "where_ts.json"))
	assert.FileExists(t, filepath.Join(out, "rg1", "scratch", "gpt-4o", "where_ts_validation.json"))

	got, err = execute(t, "run", "--config", cfgPath, "--framework", "strands", "--run-group", "rg2")
	require.NoError(t, err, got)
	assert.Contains(t, got, "valid: 1")

	got, err = execute(t, "compare", "--config", cfgPath, "--run-group", "rg1")
	require.NoError(t, err, got)
	assert.Contains(t, got, "strands (rg2)")
	assert.Contains(t, got, "ties 1 (jointly covered 1)")

	data, err := os.ReadFile(filepath.Join(out, "rg1", "comparison.json"))
	require.NoError(t, err)
	var summary comparison.Summary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, "rg2", summary.StrandsRunGroup)
	assert.Equal(t, 1, summary.Overall.Scratch.ValidRuns)
	assert.Equal(t, 1, summary.Overall.Strands.ValidRuns)
	assert.Empty(t, summary.Missing)
	assert.NotZero(t, summary.GeneratedAtUnix)

	got, err = execute(t, "records", "--config", cfgPath, "--run-group", "rg1")
	require.NoError(t, err, got)
	assert.Contains(t, got, "FRAMEWORK")
	assert.Contains(t, got, "scratch")
	assert.Contains(t, got, "parametric")

	got, err = execute(t, "records", "--config", cfgPath, "--run-group", "rg2", "--json")
	require.NoError(t, err, got)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(got), "["))
	assert.Contains(t, got, `"framework": "strands"`)
}

func TestRunReusesSnapshot(t *testing.T) {
	cfgPath, out := setup(t)
	_, err := execute(t, "run", "--config", cfgPath, "--framework", "scratch", "--run-group", "a")
	require.NoError(t, err)
	_, err = execute(t, "run", "--config", cfgPath, "--framework", "scratch", "--run-group", "b")
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(out, "canonical"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "the second run uses the saved snapshot")
}

func TestRunErrors(t *testing.T) {
	cfgPath, _ := setup(t)

	_, err := execute(t, "run", "--config", cfgPath)
	assert.Error(t, err, "--framework is required")

	_, err = execute(t, "run", "--config", cfgPath, "--framework", "langchain", "--run-group", "x")
	var ce *config.ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "framework", ce.Field)

	_, err = execute(t, "run", "--config", cfgPath, "--framework", "scratch", "--models", "", "--run-group", "x")
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "models", ce.Field)
}

func TestNewLogger(t *testing.T) {
	for _, cfg := range []config.LoggingConfig{
		{Level: "debug", Format: "json"},
		{Level: "warn", Format: "text"},
		{Level: "bogus"},
	} {
		logger, err := newLogger(cfg)
		require.NoError(t, err)
		assert.NotNil(t, logger)
	}
}
