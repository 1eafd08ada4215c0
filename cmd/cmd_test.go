package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanbot/internal/config"
	"github.com/yanbot/internal/store"
	"github.com/yanbot/internal/tasks"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "****", maskSecret("short"))
	assert.Equal(t, "ab****yz", maskSecret("abcdefghijklmnopqrstuvwxyz"))
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\n\nYAN_TEST_A=plain\nexport YAN_TEST_B=\"quoted value\"\nYAN_TEST_C='single'\nnot-a-pair\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("YAN_TEST_A", "old")
	t.Setenv("YAN_TEST_B", "")
	t.Setenv("YAN_TEST_C", "")

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "plain", os.Getenv("YAN_TEST_A"))
	assert.Equal(t, "quoted value", os.Getenv("YAN_TEST_B"))
	assert.Equal(t, "single", os.Getenv("YAN_TEST_C"))

	assert.Error(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing")))
}

func TestCheckRequiredConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Queue.Backend = "river"
	cfg.Server.BaseURL = "https://yan.example.com"
	cfg.Secrets.Callback = "callback-secret-value"
	cfg.Dispatch.Endpoints = map[string]string{"fans": "https://agent/fans"}

	result := CheckRequiredConfig(cfg)

	assert.ElementsMatch(t, []string{"secrets.transport", "telegram.token", "llm.api_key", "database.url"}, result.Missing)
	assert.Equal(t, "https://yan.example.com", result.Present["server.base_url"])
	assert.Equal(t, "ca****ue", result.Present["secrets.callback"])

	var endpointWarnings int
	for _, w := range result.Warnings {
		if bytes.Contains([]byte(w), []byte("dispatch.endpoints.")) {
			endpointWarnings++
		}
	}
	assert.Equal(t, len(tasks.All())-1, endpointWarnings)
}

func TestPrintJobs(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	require.NoError(t, printJobs(&buf, nil, now))
	assert.Equal(t, "No stale jobs\n", buf.String())

	buf.Reset()
	jobs := []store.Job{{ID: "job-1", UserID: 7, Kind: tasks.Fans, CreatedAt: now.Add(-90 * time.Minute)}}
	require.NoError(t, printJobs(&buf, jobs, now))
	assert.Contains(t, buf.String(), "job-1")
	assert.Contains(t, buf.String(), "fans")
	assert.Contains(t, buf.String(), "1h30m0s")
}
