package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/committer/internal/generator"
	"github.com/samcharles93/committer/internal/inference"
	"github.com/samcharles93/committer/internal/metrics"
	"github.com/samcharles93/committer/internal/remote"
	"github.com/samcharles93/committer/internal/tokenizer"
)

type fakeGenerator struct {
	fragments []string
	err       error
	errAfter  bool

	diff    string
	context *string
}

func (g *fakeGenerator) GenerateCommitMessageStream(_ context.Context, diff string, userContext *string, stream inference.StreamFunc) (string, error) {
	g.diff = diff
	g.context = userContext
	if g.err != nil && !g.errAfter {
		return "", g.err
	}
	for _, f := range g.fragments {
		if stream != nil {
			stream(f)
		}
	}
	if g.err != nil {
		return "", g.err
	}
	return strings.Join(g.fragments, ""), nil
}

func newTestEcho(gen Generator, reg *prometheus.Registry) *echo.Echo {
	cfg := Config{Generator: gen, Backend: metrics.BackendLocal}
	if reg != nil {
		cfg.Gatherer = reg
	}
	e := echo.New()
	NewServer(cfg).Register(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body=%s", rec.Body.String())
	return out
}

func TestCreateGetDeleteLifecycle(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{fragments: []string{"docs:", " fix typo"}}
	e := newTestEcho(gen, nil)

	rec := doJSON(t, e, http.MethodPost, "/v1/commit-messages", `{"diff":"+hello"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decodeBody[CommitMessage](t, rec)
	assert.Equal(t, "docs: fix typo", created.Message)
	assert.Equal(t, "commit_message", created.Object)
	assert.Equal(t, metrics.BackendLocal, created.Backend)
	assert.NotZero(t, created.Created)
	require.True(t, strings.HasPrefix(created.ID, "cmsg_"))
	_, err := uuid.Parse(strings.TrimPrefix(created.ID, "cmsg_"))
	require.NoError(t, err)

	assert.Equal(t, "+hello", gen.diff)
	assert.Nil(t, gen.context, "absent context stays nil")

	rec = doJSON(t, e, http.MethodGet, "/v1/commit-messages/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created, decodeBody[CommitMessage](t, rec))

	rec = doJSON(t, e, http.MethodDelete, "/v1/commit-messages/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deleted":true`)

	rec = doJSON(t, e, http.MethodGet, "/v1/commit-messages/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreatePassesContext(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{fragments: []string{"feat: add x"}}
	e := newTestEcho(gen, nil)

	rec := doJSON(t, e, http.MethodPost, "/v1/commit-messages", `{"diff":"+x","context":"ticket 12"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, gen.context)
	assert.Equal(t, "ticket 12", *gen.context)
}

func TestCreateValidationErrors(t *testing.T) {
	t.Parallel()

	e := newTestEcho(&fakeGenerator{fragments: []string{"x"}}, nil)
	cases := map[string]string{
		"empty body":    ``,
		"not json":      `diff`,
		"missing diff":  `{}`,
		"blank diff":    `{"diff":"  \n"}`,
		"unknown field": `{"diff":"+x","model":"other"}`,
	}
	for name, body := range cases {
		rec := doJSON(t, e, http.MethodPost, "/v1/commit-messages", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "%s: %s", name, rec.Body.String())
		assert.Contains(t, rec.Body.String(), "invalid_request_error", name)
	}
}

func TestCreateErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: max_length", inference.ErrInvalidConfig), http.StatusBadRequest, "invalid_config"},
		{fmt.Errorf("encode prompt: %w", tokenizer.ErrInputTooLong), http.StatusBadRequest, "input_too_long"},
		{fmt.Errorf("%w: status 401", remote.ErrRemoteRejected), http.StatusBadGateway, "remote_rejected"},
		{fmt.Errorf("%w: dial", remote.ErrRemoteUnavailable), http.StatusBadGateway, "remote_unavailable"},
		{remote.ErrRemoteEmptyResponse, http.StatusInternalServerError, "remote_empty_response"},
		{errors.New("boom"), http.StatusInternalServerError, "unknown"},
	}
	for _, tc := range cases {
		e := newTestEcho(&fakeGenerator{err: tc.err}, nil)
		rec := doJSON(t, e, http.MethodPost, "/v1/commit-messages", `{"diff":"+x"}`)
		assert.Equal(t, tc.status, rec.Code, "%v", tc.err)

		var body struct {
			Error ResponseError `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.code, body.Error.Code)
		assert.Equal(t, tc.err.Error(), body.Error.Message)
	}
}

func TestCreateRejectsBlankMessage(t *testing.T) {
	t.Parallel()

	e := newTestEcho(&fakeGenerator{fragments: []string{" ", "\n"}}, nil)
	rec := doJSON(t, e, http.MethodPost, "/v1/commit-messages", `{"diff":"+x"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), generator.ErrEmptyMessage.Error())
}

func sseEvents(t *testing.T, body string) []streamEvent {
	t.Helper()
	var out []streamEvent
	for chunk := range strings.SplitSeq(strings.TrimSpace(body), "\n\n") {
		data, ok := strings.CutPrefix(chunk, "data: ")
		require.True(t, ok, "chunk %q", chunk)
		var ev streamEvent
		require.NoError(t, json.Unmarshal([]byte(data), &ev))
		out = append(out, ev)
	}
	return out
}

func TestCreateStream(t *testing.T) {
	t.Parallel()

	e := newTestEcho(&fakeGenerator{fragments: []string{"docs:", " fix", " typo"}}, nil)
	rec := doJSON(t, e, http.MethodPost, "/v1/commit-messages", `{"diff":"+x","stream":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get(echo.HeaderContentType))

	events := sseEvents(t, rec.Body.String())
	require.Len(t, events, 4)
	var text strings.Builder
	for i, ev := range events[:3] {
		assert.Equal(t, "message.delta", ev.Type)
		assert.Equal(t, i+1, ev.SequenceNumber)
		text.WriteString(ev.Delta)
	}
	last := events[3]
	assert.Equal(t, "message.completed", last.Type)
	require.NotNil(t, last.Message)
	assert.Equal(t, text.String(), last.Message.Message)
	assert.Equal(t, 4, last.SequenceNumber)
}

func TestCreateStreamFailureAfterStart(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{fragments: []string{"fix:"}, err: fmt.Errorf("step 3: %w", errors.New("boom")), errAfter: true}
	e := newTestEcho(gen, nil)
	rec := doJSON(t, e, http.MethodPost, "/v1/commit-messages", `{"diff":"+x","stream":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	events := sseEvents(t, rec.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, "message.failed", events[1].Type)
	require.NotNil(t, events[1].Error)
	assert.Equal(t, "server_error", events[1].Error.Type)
}

func TestCreateStreamFailureBeforeStart(t *testing.T) {
	t.Parallel()

	e := newTestEcho(&fakeGenerator{err: tokenizer.ErrInputTooLong}, nil)
	rec := doJSON(t, e, http.MethodPost, "/v1/commit-messages", `{"diff":"+x","stream":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "input_too_long")
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.RecordError(metrics.BackendRemote, "remote_rejected")
	e := newTestEcho(&fakeGenerator{}, reg)

	rec := doJSON(t, e, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decodeBody[HealthResponse](t, rec)
	assert.Equal(t, "ok", health.Status)
	assert.NotEmpty(t, health.Version)

	rec = doJSON(t, e, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `committer_generation_errors_total{backend="remote",kind="remote_rejected"} 1`)
}

func TestMetricsRouteNeedsGatherer(t *testing.T) {
	t.Parallel()

	e := newTestEcho(&fakeGenerator{}, nil)
	rec := doJSON(t, e, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessageStoreEvictsOldest(t *testing.T) {
	t.Parallel()

	s := NewMessageStore(2)
	for _, id := range []string{"a", "b", "c"} {
		s.Save(CommitMessage{ID: id})
	}
	assert.Equal(t, 2, s.Len())
	_, ok := s.Get("a")
	assert.False(t, ok)
	_, ok = s.Get("c")
	assert.True(t, ok)

	require.True(t, s.Delete("b"))
	assert.False(t, s.Delete("b"))
	s.Save(CommitMessage{ID: "d"})
	s.Save(CommitMessage{ID: "e"})
	_, ok = s.Get("c")
	assert.False(t, ok, "c is the oldest once b is gone")
}
