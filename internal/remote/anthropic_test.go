package remote_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/committer/internal/remote"
)

type messageResponse struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	Role       string           `json:"role"`
	Content    []map[string]any `json:"content"`
	Model      string           `json:"model"`
	StopReason string           `json:"stop_reason"`
	Usage      map[string]int   `json:"usage"`
}

func textBlock(s string) map[string]any {
	return map[string]any{"type": "text", "text": s}
}

func reply(blocks ...map[string]any) messageResponse {
	return messageResponse{
		ID:         "msg_test",
		Type:       "message",
		Role:       "assistant",
		Content:    append([]map[string]any{}, blocks...),
		Model:      remote.DefaultModel,
		StopReason: "end_turn",
		Usage:      map[string]int{"input_tokens": 10, "output_tokens": 5},
	}
}

func newTestServer(t *testing.T, status int, body any, captured *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			var req map[string]any
			if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
				*captured = req
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, url string, opts ...remote.Option) *remote.Anthropic {
	t.Helper()
	opts = append([]remote.Option{remote.WithAPIKey("test-key"), remote.WithBaseURL(url)}, opts...)
	c, err := remote.NewAnthropic(opts...)
	require.NoError(t, err)
	return c
}

func TestGenerate_RequestShape(t *testing.T) {
	var captured map[string]any
	srv := newTestServer(t, http.StatusOK, reply(textBlock("feat: add login")), &captured)

	c := newClient(t, srv.URL, remote.WithMaxTokens(321))
	out, err := c.Generate(context.Background(), "the prompt")
	require.NoError(t, err)
	assert.Equal(t, "feat: add login", out)

	assert.Equal(t, remote.DefaultModel, captured["model"])
	assert.Equal(t, float64(321), captured["max_tokens"])
	assert.Equal(t, []any{"\nHuman: "}, captured["stop_sequences"])
	_, streaming := captured["stream"]
	assert.False(t, streaming, "request must not ask for streaming")

	msgs, ok := captured["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	msg := msgs[0].(map[string]any)
	assert.Equal(t, "user", msg["role"])
	content := msg["content"].([]any)
	require.Len(t, content, 1)
	assert.Equal(t, "the prompt", content[0].(map[string]any)["text"])
}

func TestGenerate_ConcatenatesTextBlocksOnly(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, reply(
		textBlock("fix(api): "),
		map[string]any{"type": "thinking", "thinking": "hmm", "signature": "sig"},
		textBlock("handle nil body"),
	), nil)

	out, err := newClient(t, srv.URL).Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "fix(api): handle nil body", out)
}

func TestGenerate_NoTextBlocks(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, reply(
		map[string]any{"type": "thinking", "thinking": "hmm", "signature": "sig"},
	), nil)

	_, err := newClient(t, srv.URL).Generate(context.Background(), "p")
	require.ErrorIs(t, err, remote.ErrRemoteEmptyResponse)
}

func TestGenerate_EmptyContentYieldsEmptyString(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, reply(), nil)

	out, err := newClient(t, srv.URL).Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestGenerate_Rejected(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusInternalServerError} {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"nope"}}`))
		}))

		_, err := newClient(t, srv.URL).Generate(context.Background(), "p")
		srv.Close()
		require.ErrorIs(t, err, remote.ErrRemoteRejected, "status %d", status)
		assert.Equal(t, 1, calls, "status %d must not be retried", status)
	}
}

func TestGenerate_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newClient(t, url).Generate(context.Background(), "p")
	require.ErrorIs(t, err, remote.ErrRemoteUnavailable)
}

func TestNewAnthropic_KeyFromEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	c, err := remote.NewAnthropic(remote.WithModel("claude-custom"))
	require.NoError(t, err)
	assert.Equal(t, "claude-custom", c.Model())
}

func TestNewAnthropic_NoKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	c, err := remote.NewAnthropic()
	assert.Nil(t, c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
}

func TestNewAnthropic_BadMaxTokens(t *testing.T) {
	_, err := remote.NewAnthropic(remote.WithAPIKey("k"), remote.WithMaxTokens(0))
	require.Error(t, err)
}
