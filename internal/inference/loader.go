package inference

import (
	"fmt"
	"strings"

	"github.com/samcharles93/committer/internal/logger"
	"github.com/samcharles93/committer/internal/metrics"
	"github.com/samcharles93/committer/internal/model"
)

type LoadResult struct {
	Engine *Engine
	Bundle *model.Bundle
	// Defaults is DefaultConfig adjusted to the bundle's own settings.
	Defaults Config
}

// Load reads a model bundle directory and builds an Engine around it.
func Load(dir string, log logger.Logger, m *metrics.Metrics) (*LoadResult, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("model directory is required")
	}
	b, err := model.LoadBundleDir(dir)
	if err != nil {
		return nil, fmt.Errorf("load model bundle %s: %w", dir, err)
	}

	defaults := DefaultConfig()
	defaults.UseCache = b.Config.UseCache

	engine := &Engine{
		Model:      b.Model,
		Tokenizer:  b.Tokenizer,
		StopTokens: BuildStopTokens(b.Tokenizer, b.Config.EOSTokenID),
		Logger:     log,
		Metrics:    m,
	}
	if log != nil {
		log.Debug("model bundle loaded",
			"dir", dir,
			"model_type", b.Config.ModelType,
			"layers", b.Config.NumLayers,
			"vocab", b.Config.VocabSize,
			"stop_tokens", engine.StopTokens,
		)
	}
	return &LoadResult{Engine: engine, Bundle: b, Defaults: defaults}, nil
}
