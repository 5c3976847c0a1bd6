// Package root builds the jobshell command tree.
package root

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/PiranhaCodes/jobshell/internal/api"
	"github.com/PiranhaCodes/jobshell/internal/config"
	cmderr "github.com/PiranhaCodes/jobshell/internal/err"
	"github.com/PiranhaCodes/jobshell/internal/iostreams"
	"github.com/PiranhaCodes/jobshell/internal/log"
	"github.com/PiranhaCodes/jobshell/internal/repl"
	"github.com/PiranhaCodes/jobshell/internal/shell"
)

const configFlagName = "config"

// NewRootCmd returns the jobshell command with its subcommands.
func NewRootCmd(streams *iostreams.IOStreams) *cobra.Command {
	defaultConfig, err := config.GetDefaultConfigFilePath()
	if err != nil {
		defaultConfig = ""
	}

	rootCmd := &cobra.Command{
		Use:   config.CLIName,
		Short: "A shell with job control",
		Long: `jobshell reads command lines, runs each pipeline as a job in its own
process group, and hands the terminal to foreground jobs.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runShell(cmd, streams)
		},
	}
	rootCmd.SetIn(streams.In)
	rootCmd.SetOut(streams.Out)
	rootCmd.SetErr(streams.ErrOut)

	pf := rootCmd.PersistentFlags()
	pf.String(configFlagName, defaultConfig, "Path to the configuration file to load.")
	pf.String(config.InteractiveKey, config.InteractiveAuto, "Job control: auto, true or false.")
	pf.String(config.PromptKey, "", "Prompt text. Empty shows the working directory.")
	pf.String(config.LogLevelKey, "error", "Log level: trace, debug, info, warn or error.")
	pf.String(config.LogFileKey, "", "Write logs to this file.")
	pf.String(config.StatusSocketKey, "", "Serve job status on this UNIX socket.")

	rootCmd.AddCommand(newHostCmd(streams), newStatusCmd(streams))
	return rootCmd
}

// Execute runs the command tree with args and returns the process exit
// status.
func Execute(ctx context.Context, streams *iostreams.IOStreams, args []string) int {
	rootCmd := NewRootCmd(streams)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}

	var exit *repl.ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}

	fmt.Fprintf(streams.ErrOut, "%s: %v\n", config.CLIName, err)
	return cmderr.ExitCode(err)
}

// loadConfig resolves the configuration for cmd from its flags, the
// environment and the config file.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString(configFlagName)
	if err != nil {
		return config.Config{}, &cmderr.ConfigurationError{Err: err}
	}
	rv, err := config.NewViper(path)
	if err != nil {
		return config.Config{}, &cmderr.ConfigurationError{Err: err}
	}
	if err := config.BindFlags(rv, cmd.Flags()); err != nil {
		return config.Config{}, &cmderr.ConfigurationError{Err: err}
	}
	cfg, err := config.Load(rv)
	if err != nil {
		return config.Config{}, &cmderr.ConfigurationError{Err: err}
	}
	return cfg, nil
}

// newLogger builds the logger cfg asks for. The returned closer releases
// the log file, if one was opened.
func newLogger(cfg config.Config, streams *iostreams.IOStreams) (*slog.Logger, io.Closer, error) {
	if cfg.LogFile == "" {
		return log.New(cfg.LogLevel, nil, streams.ErrOut), nopCloser{}, nil
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, &cmderr.ConfigurationError{Err: fmt.Errorf("open log file: %w", err)}
	}
	return log.New(cfg.LogLevel, f, streams.ErrOut), f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func runShell(cmd *cobra.Command, streams *iostreams.IOStreams) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, closer, err := newLogger(cfg, streams)
	if err != nil {
		return err
	}
	defer closer.Close()

	isTerminal := false
	if in, ok := streams.In.(*os.File); ok {
		isTerminal = isatty.IsTerminal(in.Fd())
	}

	logger.Debug("starting shell", "config", cfg.Path, "interactive", cfg.Interactive)
	s, err := shell.New(
		shell.WithStreams(streams),
		shell.WithInteractive(cfg.InteractiveMode(isTerminal)),
		shell.WithLogger(logger),
	)
	if err != nil {
		return &cmderr.ExecutionError{Msg: "cannot start shell", Err: err}
	}
	defer s.Close()

	if cfg.StatusSocket != "" {
		srv := api.NewServer(cfg.StatusSocket, s, logger)
		if err := srv.Start(); err != nil {
			return &cmderr.ExecutionError{Msg: "cannot serve status", Err: err}
		}
		defer srv.Stop()
	}

	return repl.New(s, streams,
		repl.WithPrompt(cfg.Prompt),
		repl.WithLogger(logger),
	).Run(cmd.Context())
}
