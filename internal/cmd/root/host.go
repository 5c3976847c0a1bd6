package root

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cmderr "github.com/PiranhaCodes/jobshell/internal/err"
	"github.com/PiranhaCodes/jobshell/internal/iostreams"
	"github.com/PiranhaCodes/jobshell/internal/pty"
	"github.com/PiranhaCodes/jobshell/internal/repl"
)

const transcriptFlagName = "transcript"

func newHostCmd(streams *iostreams.IOStreams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "host [-- program [args...]]",
		Short: "Run the shell on a new pseudo-terminal",
		Long: `host starts jobshell, or the given program, as the session leader of a
new pseudo-terminal and relays this terminal to it. The hosted shell gets
job control even when jobshell itself was started without a terminal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(cmd, streams, args)
		},
	}
	cmd.Flags().String(transcriptFlagName, "", "Append everything the hosted program prints to this file.")
	return cmd
}

func runHost(cmd *cobra.Command, streams *iostreams.IOStreams, args []string) error {
	if id := os.Getenv(pty.SessionEnv); id != "" {
		return &cmderr.ConfigurationError{Err: fmt.Errorf("already running in host session %s", id)}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, closer, err := newLogger(cfg, streams)
	if err != nil {
		return err
	}
	defer closer.Close()

	name := ""
	var programArgs []string
	if len(args) > 0 {
		name, programArgs = args[0], args[1:]
	} else if cfg.Path != "" {
		programArgs = []string{"--" + configFlagName, cfg.Path}
	}

	program, err := pty.ResolveProgram(name)
	if err != nil {
		return &cmderr.ConfigurationError{Err: err}
	}

	code, err := pty.Run(cmd.Context(), streams, program, programArgs, pty.Options{
		Transcript: cfg.Transcript,
		Logger:     logger,
	})
	if err != nil {
		return &cmderr.ExecutionError{Msg: "host session failed", Err: err}
	}
	if code != 0 {
		return &repl.ExitError{Code: code}
	}
	return nil
}
