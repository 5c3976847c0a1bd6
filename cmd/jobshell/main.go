package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/PiranhaCodes/jobshell/internal/cmd/root"
	"github.com/PiranhaCodes/jobshell/internal/iostreams"
)

// registerSignalHandler cancels the returned context on SIGTERM or SIGHUP.
// SIGINT is left to the shell, which passes it to the foreground job.
func registerSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func main() {
	ctx, cancel := registerSignalHandler()
	code := root.Execute(ctx, iostreams.NewOSIOStreams(), os.Args[1:])
	cancel()
	os.Exit(code)
}
