package main

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nudge-project/nudge/pkg/config"
)

// getProjectRoot returns the absolute path to the project root.
func getProjectRoot(t *testing.T) string {
	dir, err := os.Getwd()
	require.NoError(t, err)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	t.Fatal("go.mod not found")
	return ""
}

func buildBinary(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping build test in short mode")
	}
	binPath := filepath.Join(t.TempDir(), "nudge")
	buildCmd := exec.Command("go", "build", "-o", binPath, ".")
	buildCmd.Dir = filepath.Join(getProjectRoot(t), "cmd", "nudge")
	output, err := buildCmd.CombinedOutput()
	require.NoError(t, err, "build failed: %s", string(output))
	return binPath
}

func writeConfig(t *testing.T, deadline time.Time) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := config.Default()
	cfg.Deadline = deadline
	require.NoError(t, config.Save(path, cfg))
	return path
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 0
}

func TestMainEntryPoints(t *testing.T) {
	_ = main
}

func TestMainHelpFlag(t *testing.T) {
	bin := buildBinary(t)

	out, err := exec.Command(bin, "--help").CombinedOutput()
	require.NoError(t, err)
	assert.Contains(t, string(out), "nudge")
	assert.Contains(t, string(out), "deferral")
}

func TestMainUnknownCommand(t *testing.T) {
	bin := buildBinary(t)

	out, err := exec.Command(bin, "unknown-command-xyz").CombinedOutput()
	assert.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, strings.ToLower(string(out)), "unknown")
}

func TestBinaryStatusJSON(t *testing.T) {
	bin := buildBinary(t)
	cfg := writeConfig(t, time.Now().Add(10*24*time.Hour))

	cmd := exec.Command(bin, "--config", cfg, "--state-dir", t.TempDir(), "--json", "status")
	out, err := cmd.Output()
	require.NoError(t, err)
	assert.Contains(t, string(out), `"days_remaining": 9`)
	assert.Contains(t, string(out), `"mode": "active"`)
}

func TestBinaryOverdueDeferralExitCode(t *testing.T) {
	bin := buildBinary(t)
	cfg := writeConfig(t, time.Now().Add(-48*time.Hour))

	cmd := exec.Command(bin, "--config", cfg, "--state-dir", t.TempDir(), "--no-color", "defer", "--quit")
	out, err := cmd.CombinedOutput()
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
	assert.Contains(t, string(out), "E_INVALID_DEFERRAL")
}

func TestBinaryInvalidConfigExitCode(t *testing.T) {
	bin := buildBinary(t)
	missing := filepath.Join(t.TempDir(), "absent.yaml")

	cmd := exec.Command(bin, "--config", missing, "--state-dir", t.TempDir(), "status")
	out, err := cmd.CombinedOutput()
	require.Error(t, err)
	assert.Equal(t, 3, exitCode(err))
	assert.Contains(t, string(out), "deadline is required")
}
