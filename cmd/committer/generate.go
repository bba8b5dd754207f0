package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/committer/internal/generator"
	"github.com/samcharles93/committer/internal/gitrepo"
	"github.com/samcharles93/committer/internal/inference"
	"github.com/samcharles93/committer/internal/logger"
)

func generateFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "context",
			Aliases: []string{"c"},
			Usage:   "extra context for the message body; enables the summary-and-body prompt",
		},
		&cli.BoolFlag{
			Name:  "commit",
			Usage: "open the message in the git editor and commit the staged changes",
		},
	}
}

func generateCmd() *cli.Command {
	return &cli.Command{
		Name:   "generate",
		Usage:  "Generate a commit message for the staged changes (default)",
		Action: generateAction,
	}
}

func generateAction(ctx context.Context, cmd *cli.Command) error {
	s, err := settingsFrom(ctx)
	if err != nil {
		return err
	}
	log := logger.FromContext(ctx)

	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	repo, err := gitrepo.Open(wd)
	if err != nil {
		return err
	}

	// The model load does not depend on the diff, so both run at once.
	var (
		diff    string
		backend generator.Backend
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := repo.StagedDiff(gctx)
		diff = d
		return err
	})
	g.Go(func() error {
		b, err := buildBackend(s, log, nil)
		backend = b
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	var userContext *string
	if cmd.IsSet("context") {
		userContext = new(cmd.String("context"))
	}

	d := &generator.Dispatcher{Backend: backend, Scopes: s.Scopes, Logger: log}
	commit := cmd.Bool("commit")
	out := cmd.Root().Writer
	if out == nil {
		out = os.Stdout
	}

	var stream inference.StreamFunc
	streamed := false
	if !commit && out == os.Stdout && isTerminal(os.Stdout) {
		stream = func(fragment string) {
			streamed = true
			_, _ = fmt.Fprint(out, fragment)
		}
	}

	msg, err := d.GenerateCommitMessageStream(ctx, diff, userContext, stream)
	if streamed {
		_, _ = fmt.Fprintln(out)
	}
	if err != nil {
		return err
	}
	if strings.TrimSpace(msg) == "" {
		return generator.ErrEmptyMessage
	}

	if !commit {
		if !streamed {
			_, _ = fmt.Fprintln(out, msg)
		}
		return nil
	}

	hash, err := repo.Commit(ctx, msg, diff, gitrepo.ShellEditor(repo.EditorCommand()))
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "committed %s\n", hash.String()[:12])
	return nil
}
