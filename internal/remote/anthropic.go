// Package remote sends rendered prompts to the Anthropic Messages API.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/samcharles93/committer/internal/logger"
)

var (
	// ErrRemoteUnavailable reports a request that never got an HTTP response.
	ErrRemoteUnavailable = errors.New("remote endpoint unavailable")
	// ErrRemoteRejected reports a non-success HTTP response.
	ErrRemoteRejected = errors.New("remote endpoint rejected request")
	// ErrRemoteEmptyResponse reports content blocks without any text.
	ErrRemoteEmptyResponse = errors.New("remote response has no text")
)

const (
	DefaultModel     = "claude-3-7-sonnet-20250219"
	DefaultMaxTokens = 1000
	// StopSequence keeps the model from continuing into a new turn.
	StopSequence = "\nHuman: "
)

// Anthropic is a one-shot, non-streaming Messages API client. It never
// retries; retry policy belongs to the caller.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	log       logger.Logger
}

// Option configures an Anthropic client.
type Option func(*config)

type config struct {
	apiKey     string
	model      string
	maxTokens  int
	baseURL    string
	httpClient *http.Client
	log        logger.Logger
}

// WithAPIKey sets the API key. Without it ANTHROPIC_API_KEY is used.
func WithAPIKey(key string) Option {
	return func(c *config) { c.apiKey = key }
}

func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

func WithMaxTokens(n int) Option {
	return func(c *config) { c.maxTokens = n }
}

// WithBaseURL points the client at another endpoint, e.g. a proxy or a
// test server.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

func WithLogger(log logger.Logger) Option {
	return func(c *config) { c.log = log }
}

// NewAnthropic builds a client. It fails when no API key is available.
func NewAnthropic(opts ...Option) (*Anthropic, error) {
	cfg := config{model: DefaultModel, maxTokens: DefaultMaxTokens}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.apiKey == "" {
		cfg.apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.apiKey == "" {
		return nil, errors.New("remote: no API key configured (set api_key or ANTHROPIC_API_KEY)")
	}
	if cfg.maxTokens <= 0 {
		return nil, fmt.Errorf("remote: max tokens %d must be positive", cfg.maxTokens)
	}
	if cfg.log == nil {
		cfg.log = logger.Discard()
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(cfg.apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(cfg.httpClient))
	}

	return &Anthropic{
		client:    anthropic.NewClient(clientOpts...),
		model:     cfg.model,
		maxTokens: int64(cfg.maxTokens),
		log:       cfg.log,
	}, nil
}

func (a *Anthropic) Model() string { return a.model }

// Generate sends prompt as a single user message and concatenates the text
// blocks of the reply. A reply with no content blocks at all yields "".
func (a *Anthropic) Generate(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		StopSequences: []string{StopSequence},
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%w: status %d: %w", ErrRemoteRejected, apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}

	var sb strings.Builder
	texts := 0
	for _, block := range msg.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(variant.Text)
			texts++
		}
	}
	a.log.Debug("remote generation finished",
		"model", string(msg.Model),
		"stop_reason", string(msg.StopReason),
		"input_tokens", msg.Usage.InputTokens,
		"output_tokens", msg.Usage.OutputTokens,
	)
	if len(msg.Content) > 0 && texts == 0 {
		return "", fmt.Errorf("%w: %d non-text blocks", ErrRemoteEmptyResponse, len(msg.Content))
	}
	return sb.String(), nil
}
