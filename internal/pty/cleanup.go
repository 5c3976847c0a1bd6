package pty

import (
	"syscall"
	"time"
)

// killGrace is how long Cleanup waits after SIGTERM before SIGKILL.
const killGrace = 2 * time.Second

// Cleanup closes the terminal and the transcript. A program that is still
// running is sent SIGTERM, then SIGKILL, and Cleanup returns once it has
// been reaped.
func Cleanup(sess *Session) {
	if sess == nil {
		return
	}

	sess.logger.Debug("cleaning up")

	sess.mu.Lock()
	if sess.Pty != nil {
		sess.Pty.Close()
		sess.Pty = nil
	}
	if sess.transcript != nil {
		if err := sess.transcript.Close(); err != nil {
			sess.logger.Warn("failed to close transcript", "error", err)
		}
		sess.transcript = nil
	}
	sess.mu.Unlock()

	select {
	case <-sess.exited:
		return
	default:
	}

	if err := sess.Cmd.Process.Signal(syscall.SIGTERM); err != nil {
		sess.logger.Warn("failed to send SIGTERM", "pid", sess.Cmd.Process.Pid, "error", err)
	}

	select {
	case <-sess.exited:
	case <-time.After(killGrace):
		if err := sess.Cmd.Process.Kill(); err != nil {
			sess.logger.Warn("failed to kill", "pid", sess.Cmd.Process.Pid, "error", err)
		}
		<-sess.exited
	}
}
