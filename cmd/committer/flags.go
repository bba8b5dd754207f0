package main

import (
	"context"
	"errors"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/committer/internal/config"
	"github.com/samcharles93/committer/internal/logger"
)

var (
	configPath string
	logLevel   string
	logFormat  string
	debug      bool
)

func settingsFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to the settings file",
			Sources:     cli.EnvVars(config.EnvPath),
			Destination: &configPath,
		},
		&cli.StringFlag{
			Name:  "model",
			Usage: "remote model name",
		},
		&cli.IntFlag{
			Name:  "max-tokens",
			Usage: "remote response token budget",
		},
		&cli.BoolFlag{
			Name:  "local",
			Usage: "generate with the local model instead of the remote API",
		},
		&cli.StringFlag{
			Name:  "model-dir",
			Usage: "directory holding config.json, tokenizer.json and model.safetensors",
		},
		&cli.StringSliceFlag{
			Name:  "scope",
			Usage: "allowed conventional-commit scope (repeatable)",
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func localFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "max-length", Usage: "maximum generated tokens (local)"},
		&cli.FloatFlag{Name: "temperature", Aliases: []string{"temp"}, Usage: "sampling temperature, 0 is greedy (local)"},
		&cli.FloatFlag{Name: "top-p", Usage: "nucleus sampling mass (local)"},
		&cli.Int64Flag{Name: "seed", Usage: "sampling seed (local)"},
		&cli.FloatFlag{Name: "repeat-penalty", Usage: "repetition penalty (local)"},
		&cli.IntFlag{Name: "repeat-last-n", Usage: "repetition penalty window (local)"},
		&cli.BoolFlag{Name: "no-cache", Usage: "disable the decoder cache (local)"},
	}
}

type settingsKey struct{}

// setup loads the settings file, applies explicitly set flags over it and
// installs the logger. Flags win only when set on the command line.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := configPath
	if path == "" {
		path = config.Path()
	}
	s, err := config.Load(path)
	if err != nil {
		return ctx, err
	}
	applyFlags(cmd, &s)

	level := config.String(s.LogLevel)
	if debug {
		level = "debug"
	}
	log, err := logger.Setup(os.Stderr, level, config.String(s.LogFormat), isTerminal(os.Stderr))
	if err != nil {
		return ctx, err
	}
	log.Debug("settings loaded", "path", path)

	ctx = logger.WithContext(ctx, log)
	return context.WithValue(ctx, settingsKey{}, s), nil
}

func applyFlags(cmd *cli.Command, s *config.Settings) {
	if cmd.IsSet("model") {
		s.Model = new(cmd.String("model"))
	}
	if cmd.IsSet("max-tokens") {
		s.MaxTokens = new(cmd.Int("max-tokens"))
	}
	if cmd.IsSet("local") {
		s.UseLocal = new(cmd.Bool("local"))
	}
	if cmd.IsSet("model-dir") {
		s.ModelDir = new(cmd.String("model-dir"))
	}
	if cmd.IsSet("scope") {
		s.Scopes = cmd.StringSlice("scope")
	}
	if cmd.IsSet("log-level") {
		s.LogLevel = new(logLevel)
	}
	if cmd.IsSet("log-format") {
		s.LogFormat = new(logFormat)
	}

	l := &s.Local
	if cmd.IsSet("max-length") {
		l.MaxLength = new(cmd.Int("max-length"))
	}
	if cmd.IsSet("temperature") {
		l.Temperature = new(cmd.Float("temperature"))
	}
	if cmd.IsSet("top-p") {
		l.TopP = new(cmd.Float("top-p"))
	}
	if cmd.IsSet("seed") {
		l.Seed = new(cmd.Int64("seed"))
	}
	if cmd.IsSet("repeat-penalty") {
		l.RepeatPenalty = new(cmd.Float("repeat-penalty"))
	}
	if cmd.IsSet("repeat-last-n") {
		l.RepeatLastN = new(cmd.Int("repeat-last-n"))
	}
	if cmd.IsSet("no-cache") {
		l.UseCache = new(!cmd.Bool("no-cache"))
	}
}

func settingsFrom(ctx context.Context) (config.Settings, error) {
	s, ok := ctx.Value(settingsKey{}).(config.Settings)
	if !ok {
		return config.Settings{}, errors.New("settings not loaded")
	}
	return s, nil
}
