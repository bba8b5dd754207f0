package main

import (
	"fmt"

	"github.com/samcharles93/committer/internal/config"
	"github.com/samcharles93/committer/internal/generator"
	"github.com/samcharles93/committer/internal/inference"
	"github.com/samcharles93/committer/internal/logger"
	"github.com/samcharles93/committer/internal/metrics"
	"github.com/samcharles93/committer/internal/remote"
)

// buildBackend selects exactly one backend from use_local.
func buildBackend(s config.Settings, log logger.Logger, m *metrics.Metrics) (generator.Backend, error) {
	if s.UseLocal != nil && *s.UseLocal {
		res, err := inference.Load(config.String(s.ModelDir), log, m)
		if err != nil {
			return nil, err
		}
		cfg := inference.Resolve(s.Local.Options(), res.Defaults)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		log.Info("using local model", "dir", config.String(s.ModelDir), "max_length", cfg.MaxLength, "temperature", cfg.Temperature)
		return &generator.Local{Engine: res.Engine, Config: cfg}, nil
	}

	opts := []remote.Option{
		remote.WithAPIKey(config.String(s.APIKey)),
		remote.WithModel(config.String(s.Model)),
		remote.WithLogger(log),
	}
	if s.MaxTokens != nil {
		opts = append(opts, remote.WithMaxTokens(*s.MaxTokens))
	}
	client, err := remote.NewAnthropic(opts...)
	if err != nil {
		return nil, fmt.Errorf("configure remote backend: %w", err)
	}
	log.Info("using remote model", "model", client.Model())
	return &generator.Remote{Client: client}, nil
}
