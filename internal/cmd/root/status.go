package root

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/PiranhaCodes/jobshell/internal/api"
	"github.com/PiranhaCodes/jobshell/internal/config"
	cmderr "github.com/PiranhaCodes/jobshell/internal/err"
	"github.com/PiranhaCodes/jobshell/internal/iostreams"
)

const statusTimeout = 5 * time.Second

func newStatusCmd(streams *iostreams.IOStreams) *cobra.Command {
	var (
		state  string
		output string
		ping   bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the jobs of a running shell",
		Long: `status queries the status socket of a running jobshell and prints its
jobs. The socket is taken from the status-socket setting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.StatusSocket == "" {
				return &cmderr.ConfigurationError{Err: errors.New(config.StatusSocketKey + " is not set")}
			}
			switch output {
			case "text", "yaml", "json":
			default:
				return &cmderr.ConfigurationError{Err: fmt.Errorf("unknown output format %q", output)}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
			defer cancel()

			if ping {
				resp, err := api.Ping(ctx, cfg.StatusSocket)
				if err != nil {
					return &cmderr.ExecutionError{Msg: "ping failed", Err: err}
				}
				return render(streams, output, resp, func() {
					fmt.Fprintf(streams.Out, "pid %d, %d jobs\n", resp.Pid, resp.Jobs)
				})
			}

			resp, err := api.List(ctx, cfg.StatusSocket, state)
			if err != nil {
				return &cmderr.ExecutionError{Msg: "list failed", Err: err}
			}
			return render(streams, output, resp.Jobs, func() {
				for _, info := range resp.Jobs {
					fmt.Fprintf(streams.Out, "[%d] %d (%s): %s\n", info.ID, info.Pgid, info.State, info.Command)
				}
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "Only list jobs in this state: running, stopped or completed.")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, yaml or json.")
	cmd.Flags().BoolVar(&ping, "ping", false, "Only check that the shell is serving.")
	return cmd
}

func render(streams *iostreams.IOStreams, format string, v any, text func()) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(streams.Out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	case "json":
		enc := json.NewEncoder(streams.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		text()
		return nil
	}
}
