// Package inference runs the local encode-once, decode-step-by-step loop
// that turns a prompt into generated text.
package inference

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/samcharles93/committer/internal/logger"
	"github.com/samcharles93/committer/internal/logits"
	"github.com/samcharles93/committer/internal/metrics"
	"github.com/samcharles93/committer/internal/model"
	"github.com/samcharles93/committer/internal/tokenizer"
)

// Tokenizer is the part of tokenizer.Adapter the loop needs.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
	VocabSize() int
}

// Engine generates text with a loaded encoder/decoder model. The model is
// shared read-only, so one Engine serves concurrent Generate calls.
type Engine struct {
	Model      model.Seq2Seq
	Tokenizer  Tokenizer
	StopTokens []int
	Logger     logger.Logger
	Metrics    *metrics.Metrics
}

// Generate encodes prompt once and decodes until a stop token is sampled or
// cfg.MaxLength tokens have been emitted. Stop tokens are never part of the
// output. On failure no partial text is returned.
//
// ctx is checked before any work starts; a running loop is not interrupted.
func (e *Engine) Generate(ctx context.Context, prompt string, cfg Config, stream StreamFunc) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := e.Logger
	if log == nil {
		log = logger.FromContext(ctx)
	}

	start := time.Now()
	ids, err := e.Tokenizer.Encode(prompt)
	if err != nil {
		return nil, fmt.Errorf("encode prompt: %w", err)
	}

	text, generated, err := e.run(ids, cfg, stream)
	if err != nil {
		return nil, err
	}

	stats := Stats{
		PromptTokens:    len(ids),
		TokensGenerated: generated,
		Duration:        time.Since(start),
	}
	if stats.Duration.Seconds() > 0 {
		stats.TPS = float64(stats.TokensGenerated) / stats.Duration.Seconds()
	}
	log.Info("local generation finished",
		"prompt_tokens", stats.PromptTokens,
		"tokens", stats.TokensGenerated,
		"duration", stats.Duration,
		"tps", fmt.Sprintf("%.2f", stats.TPS),
	)
	e.Metrics.RecordLocal(stats.PromptTokens, stats.TokensGenerated, stats.Duration)

	return &Result{Text: text, Stats: stats}, nil
}

func (e *Engine) run(ids []int, cfg Config, stream StreamFunc) (text string, generated int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic in decode loop: %v", model.ErrModelExecution, r)
		}
	}()

	enc, err := e.Model.Encode(ids)
	if err != nil {
		return "", 0, err
	}

	stops := e.StopTokens
	if len(cfg.StopTokens) > 0 {
		stops = cfg.StopTokens
	}
	sampler := logits.NewSampler(logits.SamplerConfig{
		Seed:          cfg.Seed,
		Temperature:   float32(cfg.Temperature),
		TopP:          float32(cfg.TopP),
		RepeatPenalty: float32(cfg.RepeatPenalty),
		RepeatLastN:   cfg.RepeatLastN,
	})

	var cache *model.DecoderCache
	if cfg.UseCache {
		cache = e.Model.NewCache()
	}
	// Ids past the tokenizer's vocabulary are padding rows in the
	// embedding and cannot be decoded.
	vocab := min(e.Tokenizer.VocabSize(), e.Model.VocabSize())

	prefix := []int{e.Model.DecoderStartID()}
	emitted := make([]int, 0, cfg.MaxLength)
	out := tokenizer.NewStream(e.Tokenizer)
	var sb strings.Builder

	for len(emitted) < cfg.MaxLength {
		input := prefix
		if cache != nil && len(emitted) > 0 {
			input = prefix[len(prefix)-1:]
		}
		logitsVec, err := e.Model.Decode(input, enc, cache)
		if err != nil {
			return "", 0, fmt.Errorf("decode step %d: %w", len(emitted), err)
		}
		if len(logitsVec) > vocab {
			logitsVec = logitsVec[:vocab]
		}

		next := sampler.Sample(logitsVec, emitted)
		if slices.Contains(stops, next) {
			break
		}
		emitted = append(emitted, next)
		prefix = append(prefix, next)

		frag, err := out.Next(next)
		if err != nil {
			return "", 0, err
		}
		sb.WriteString(frag)
		if stream != nil && frag != "" {
			stream(frag)
		}
	}

	rest, err := out.Flush()
	if err != nil {
		return "", 0, err
	}
	sb.WriteString(rest)
	if stream != nil && rest != "" {
		stream(rest)
	}
	return sb.String(), len(emitted), nil
}
