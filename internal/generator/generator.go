// Package generator turns a staged diff into a commit message by rendering
// the prompt and routing it to the configured backend.
package generator

import (
	"context"
	"errors"
	"time"

	"github.com/samcharles93/committer/internal/inference"
	"github.com/samcharles93/committer/internal/logger"
	"github.com/samcharles93/committer/internal/metrics"
	"github.com/samcharles93/committer/internal/model"
	"github.com/samcharles93/committer/internal/prompt"
	"github.com/samcharles93/committer/internal/remote"
	"github.com/samcharles93/committer/internal/tokenizer"
)

// ErrEmptyMessage is what callers report when a backend produced only
// whitespace. The Dispatcher itself never returns it.
var ErrEmptyMessage = errors.New("generated commit message is empty")

// Backend is one of Local or Remote.
type Backend interface {
	Generate(ctx context.Context, rendered string, stream inference.StreamFunc) (string, error)
	Name() string
	backend()
}

// Local runs the prompt through the on-device decode loop.
type Local struct {
	Engine *inference.Engine
	Config inference.Config
}

func (l *Local) Generate(ctx context.Context, rendered string, stream inference.StreamFunc) (string, error) {
	res, err := l.Engine.Generate(ctx, rendered, l.Config, stream)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

func (*Local) Name() string { return metrics.BackendLocal }
func (*Local) backend()     {}

// Remote sends the prompt to the hosted model. It does not stream.
type Remote struct {
	Client interface {
		Generate(ctx context.Context, rendered string) (string, error)
	}
}

func (r *Remote) Generate(ctx context.Context, rendered string, _ inference.StreamFunc) (string, error) {
	return r.Client.Generate(ctx, rendered)
}

func (*Remote) Name() string { return metrics.BackendRemote }
func (*Remote) backend()     {}

// Dispatcher renders prompts and hands them to exactly one backend. It does
// not retry, fall back or post-process the text.
type Dispatcher struct {
	Backend Backend
	Scopes  []string
	Logger  logger.Logger
	Metrics *metrics.Metrics
}

// GenerateCommitMessage renders the summary-and-body prompt when userContext
// is non-nil, the summary-only prompt otherwise, and returns the backend's text
// verbatim.
func (d *Dispatcher) GenerateCommitMessage(ctx context.Context, diff string, userContext *string) (string, error) {
	return d.GenerateCommitMessageStream(ctx, diff, userContext, nil)
}

// GenerateCommitMessageStream is GenerateCommitMessage with fragments passed
// to stream as the local backend produces them.
func (d *Dispatcher) GenerateCommitMessageStream(ctx context.Context, diff string, userContext *string, stream inference.StreamFunc) (string, error) {
	log := d.Logger
	if log == nil {
		log = logger.FromContext(ctx)
	}
	name := d.Backend.Name()
	p := prompt.Build(diff, d.Scopes, userContext)
	log.Debug("dispatching prompt", "backend", name, "prompt_bytes", len(p), "with_context", userContext != nil)

	start := time.Now()
	text, err := d.Backend.Generate(ctx, p, stream)
	if err != nil {
		d.Metrics.RecordError(name, Kind(err))
		return "", err
	}
	if name == metrics.BackendRemote {
		d.Metrics.RecordRemote(time.Since(start))
	}
	return text, nil
}

// Kind names the failure class of err for metrics and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, inference.ErrInvalidConfig):
		return "invalid_config"
	case errors.Is(err, tokenizer.ErrInputTooLong):
		return "input_too_long"
	case errors.Is(err, tokenizer.ErrTokenization):
		return "tokenization"
	case errors.Is(err, model.ErrModelExecution):
		return "model_execution"
	case errors.Is(err, remote.ErrRemoteUnavailable):
		return "remote_unavailable"
	case errors.Is(err, remote.ErrRemoteRejected):
		return "remote_rejected"
	case errors.Is(err, remote.ErrRemoteEmptyResponse):
		return "remote_empty_response"
	case errors.Is(err, ErrEmptyMessage):
		return "empty_message"
	default:
		return "unknown"
	}
}
