// Package terminal arbitrates the controlling terminal between the shell and
// the jobs it runs.
//
// A Controller is created once per shell by Initialize. It puts the shell in
// its own process group, makes that group the terminal's foreground group,
// and records the shell's terminal mode. Foreground hands the terminal to a
// job's process group and blocks until the job stops or completes; the
// terminal is always given back to the shell before Foreground returns.
//
// # Signal presets
//
// The six job-control signals (SIGINT, SIGQUIT, SIGTSTP, SIGTTIN, SIGTTOU,
// SIGCHLD) are switched as a set by two presets:
//
//   - ShellPreset catches and discards them, so a Ctrl-C or Ctrl-Z typed at
//     the shell never stops or kills it.
//   - DefaultPreset restores the default dispositions.
//
// A caught signal reverts to its default disposition across execve, so every
// stage started by the shell runs with the default preset.
package terminal
