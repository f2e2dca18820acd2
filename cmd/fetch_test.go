package cmd

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// outputDirs returns fresh, not-yet-created output roots under a temp dir.
func outputDirs(t *testing.T) (raw, processed, sqlDir string) {
	t.Helper()
	root := t.TempDir()
	return filepath.Join(root, "raw"), filepath.Join(root, "processed"), filepath.Join(root, "sql")
}

// runCLI executes the root command with the given arguments. Flags are shared
// across invocations, so every test passes its settings explicitly.
func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func assertAbsent(t *testing.T, dirs ...string) {
	t.Helper()
	for _, dir := range dirs {
		_, err := os.Stat(dir)
		assert.True(t, os.IsNotExist(err), "expected %s to not exist", dir)
	}
}

func TestFetchRetryExhaustionPersistsNothing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()
	raw, processed, sqlDir := outputDirs(t)

	err := runCLI(t, "fetch",
		"--base-url", server.URL,
		"--periode-merge", "2024-1",
		"--levels", "provinsi",
		"--max-retries", "2",
		"--delay", "0s",
		"--dry-run=false",
		"--raw-dir", raw,
		"--processed-dir", processed,
		"--sql-dir", sqlDir,
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assertAbsent(t, raw, processed, sqlDir)
}

func TestFetchDryRunPersistsNothing(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, `[{"kode_bps":"11","nama_bps":"ACEH"}]`)
	}))
	defer server.Close()
	raw, processed, sqlDir := outputDirs(t)

	err := runCLI(t, "fetch",
		"--base-url", server.URL,
		"--periode-url", server.URL,
		"--periode-merge", "latest",
		"--levels", "provinsi,kabupaten",
		"--max-retries", "3",
		"--delay", "0s",
		"--dry-run",
		"--raw-dir", raw,
		"--processed-dir", processed,
		"--sql-dir", sqlDir,
	)
	require.NoError(t, err)
	assert.Equal(t, int32(0), requests.Load(), "dry-run must not issue HTTP requests")
	assertAbsent(t, raw, processed, sqlDir)
}

func TestFetchRejectsNonPositiveMaxRetries(t *testing.T) {
	raw, processed, sqlDir := outputDirs(t)

	err := runCLI(t, "fetch",
		"--base-url", "http://127.0.0.1:0",
		"--periode-merge", "2024-1",
		"--levels", "provinsi",
		"--max-retries", "0",
		"--delay", "0s",
		"--dry-run=false",
		"--raw-dir", raw,
		"--processed-dir", processed,
		"--sql-dir", sqlDir,
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--max-retries must be at least 1")
	assertAbsent(t, raw, processed, sqlDir)
}
