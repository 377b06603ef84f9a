// Package updater launches the software update. The launch itself is the
// only side effect; whether the update succeeds afterwards is out of scope.
package updater

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds how long a launch command may run.
const DefaultTimeout = 30 * time.Second

// ErrNoCommand is returned when no update command is configured.
var ErrNoCommand = errors.New("no update command configured")

// Updater starts the update mechanism.
type Updater interface {
	LaunchUpdate(ctx context.Context) error
}

// Func adapts a function to an Updater.
type Func func(ctx context.Context) error

func (f Func) LaunchUpdate(ctx context.Context) error { return f(ctx) }

// CommandUpdater runs an external command, such as the system software
// update pane, and treats a zero exit as a successful launch.
type CommandUpdater struct {
	Path    string
	Args    []string
	Timeout time.Duration
}

// NewCommandUpdater returns a CommandUpdater. A zero timeout uses
// DefaultTimeout.
func NewCommandUpdater(path string, args []string, timeout time.Duration) *CommandUpdater {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CommandUpdater{Path: path, Args: args, Timeout: timeout}
}

// LaunchUpdate runs the command. Stderr is included in the error on failure.
func (u *CommandUpdater) LaunchUpdate(ctx context.Context) error {
	if strings.TrimSpace(u.Path) == "" {
		return ErrNoCommand
	}
	timeout := u.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, u.Path, u.Args...)
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", u.Path, ctx.Err())
		}
		return fmt.Errorf("%s %s: %w (stderr: %s)",
			u.Path, strings.Join(u.Args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
