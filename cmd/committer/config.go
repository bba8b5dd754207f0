package main

import (
	"context"

	"github.com/urfave/cli/v3"
)

func configCmd() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Print the resolved settings as YAML (api key masked)",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := settingsFrom(ctx)
			if err != nil {
				return err
			}
			out, err := s.Redacted().YAML()
			if err != nil {
				return err
			}
			_, err = cmd.Root().Writer.Write(out)
			return err
		},
	}
}
