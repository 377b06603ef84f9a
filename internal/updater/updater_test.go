package updater_test

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nudge-project/nudge/internal/updater"
)

func requireShell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func TestCommandUpdater_Success(t *testing.T) {
	sh := requireShell(t)
	u := updater.NewCommandUpdater(sh, []string{"-c", "exit 0"}, 0)
	assert.Equal(t, updater.DefaultTimeout, u.Timeout)
	require.NoError(t, u.LaunchUpdate(context.Background()))
}

func TestCommandUpdater_NonZeroExitIncludesStderr(t *testing.T) {
	sh := requireShell(t)
	u := updater.NewCommandUpdater(sh, []string{"-c", "echo pane missing >&2; exit 3"}, time.Second)

	err := u.LaunchUpdate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pane missing")
}

func TestCommandUpdater_Timeout(t *testing.T) {
	sh := requireShell(t)
	u := updater.NewCommandUpdater(sh, []string{"-c", "exec sleep 5"}, 50*time.Millisecond)

	start := time.Now()
	err := u.LaunchUpdate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestCommandUpdater_NoCommand(t *testing.T) {
	u := updater.NewCommandUpdater("  ", nil, 0)
	assert.ErrorIs(t, u.LaunchUpdate(context.Background()), updater.ErrNoCommand)
}

func TestCommandUpdater_MissingBinary(t *testing.T) {
	u := updater.NewCommandUpdater("/nonexistent/nudge-updater", nil, time.Second)
	assert.Error(t, u.LaunchUpdate(context.Background()))
}

func TestFunc(t *testing.T) {
	called := false
	var u updater.Updater = updater.Func(func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, u.LaunchUpdate(context.Background()))
	assert.True(t, called)
}
