package terminal

import "errors"

// Sentinel errors for the terminal package.
var (
	// ErrGroupAssignment is returned when the shell cannot be placed in its
	// own process group. The host is misconfigured and the shell should exit.
	ErrGroupAssignment = errors.New("failed to put shell into its own process group")

	// ErrNotInteractive is returned by operations that need a terminal.
	ErrNotInteractive = errors.New("shell is not interactive")
)
