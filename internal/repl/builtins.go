package repl

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type builtin func(r *REPL, args []string) error

var builtins map[string]builtin

func init() {
	builtins = map[string]builtin{
		"cd":   cd,
		"pwd":  pwd,
		"exit": exit,
		"jobs": jobs,
		"fg":   func(r *REPL, args []string) error { return resume(r, "fg", args, true) },
		"bg":   func(r *REPL, args []string) error { return resume(r, "bg", args, false) },
	}
}

func cd(r *REPL, args []string) error {
	dir := ""
	if len(args) > 0 {
		dir = args[0]
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(r.streams.ErrOut, "cd: missing argument")
			return nil
		}
		dir = home
	}
	if err := os.Chdir(dir); err != nil {
		fmt.Fprintf(r.streams.ErrOut, "cd: %v\n", err)
	}
	return nil
}

func pwd(r *REPL, _ []string) error {
	dir, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(r.streams.ErrOut, "pwd: %v\n", err)
		return nil
	}
	fmt.Fprintln(r.streams.Out, dir)
	return nil
}

func exit(r *REPL, args []string) error {
	code := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Fprintf(r.streams.ErrOut, "exit: %s: numeric argument required\n", args[0])
			n = 2
		}
		code = n
	}
	return &ExitError{Code: code}
}

func jobs(r *REPL, args []string) error {
	fs := pflag.NewFlagSet("jobs", pflag.ContinueOnError)
	fs.SetOutput(r.streams.ErrOut)
	output := fs.StringP("output", "o", "text", "output format: text, yaml or json")
	if err := fs.Parse(args); err != nil {
		return nil
	}

	switch *output {
	case "text":
		r.session.ListActive()
	case "yaml":
		enc := yaml.NewEncoder(r.streams.Out)
		enc.SetIndent(2)
		if err := enc.Encode(r.session.Snapshot()); err != nil {
			fmt.Fprintf(r.streams.ErrOut, "jobs: %v\n", err)
		}
		_ = enc.Close()
	case "json":
		enc := json.NewEncoder(r.streams.Out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r.session.Snapshot()); err != nil {
			fmt.Fprintf(r.streams.ErrOut, "jobs: %v\n", err)
		}
	default:
		fmt.Fprintf(r.streams.ErrOut, "jobs: unknown output format %q\n", *output)
	}
	return nil
}

func resume(r *REPL, name string, args []string, foreground bool) error {
	spec := ""
	if len(args) > 0 {
		spec = args[0]
	}
	h, err := r.session.Lookup(spec)
	if err != nil {
		fmt.Fprintf(r.streams.ErrOut, "%s: %v\n", name, err)
		return nil
	}
	if err := r.session.Resume(h, foreground); err != nil {
		fmt.Fprintf(r.streams.ErrOut, "%s: %v\n", name, err)
	}
	return nil
}
