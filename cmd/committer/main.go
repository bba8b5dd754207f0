package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newApp().Run(ctx, os.Args)
	stop()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:   "committer",
		Usage:  "Generate a commit message for the staged changes",
		Flags:  append(append(settingsFlags(), localFlags()...), generateFlags()...),
		Before: setup,
		Action: generateAction,
		Commands: []*cli.Command{
			generateCmd(),
			configCmd(),
			serveCmd(),
			versionCmd(),
		},
	}
}
