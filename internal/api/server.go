// Package api serves commit-message generation over HTTP.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samcharles93/committer/internal/generator"
	"github.com/samcharles93/committer/internal/inference"
	"github.com/samcharles93/committer/internal/logger"
	"github.com/samcharles93/committer/internal/version"
)

// Generator is the part of generator.Dispatcher the server needs.
type Generator interface {
	GenerateCommitMessageStream(ctx context.Context, diff string, userContext *string, stream inference.StreamFunc) (string, error)
}

type Server struct {
	gen      Generator
	backend  string
	store    *MessageStore
	gatherer prometheus.Gatherer
	log      logger.Logger
	clock    func() time.Time
}

// Config wires a Server. Store, Gatherer and Logger are optional.
type Config struct {
	Generator Generator
	Backend   string
	Store     *MessageStore
	Gatherer  prometheus.Gatherer
	Logger    logger.Logger
}

func NewServer(cfg Config) *Server {
	store := cfg.Store
	if store == nil {
		store = NewMessageStore(DefaultStoreCapacity)
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		gen:      cfg.Generator,
		backend:  cfg.Backend,
		store:    store,
		gatherer: cfg.Gatherer,
		log:      log,
		clock:    time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/commit-messages", s.handleCreate)
	e.GET("/v1/commit-messages/:id", s.handleGet)
	e.DELETE("/v1/commit-messages/:id", s.handleDelete)

	e.GET("/healthz", s.handleHealth)
	if s.gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
}

func (s *Server) handleCreate(c *echo.Context) error {
	if s.gen == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "generator not configured", "")
	}
	req, err := decodeJSON[CommitMessageRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if strings.TrimSpace(req.Diff) == "" {
		return writeBadRequest(c, "diff is required and must not be empty")
	}

	ctx := c.Request().Context()
	start := s.clock()

	var (
		writer *SSEStreamWriter
		stream inference.StreamFunc
	)
	if req.Stream {
		writer, err = NewSSEStreamWriter(c)
		if err != nil {
			return writeBadRequest(c, err.Error())
		}
		stream = writer.EmitDelta
	}

	text, err := s.gen.GenerateCommitMessageStream(ctx, req.Diff, req.Context, stream)
	if err == nil && strings.TrimSpace(text) == "" {
		err = generator.ErrEmptyMessage
	}
	if err != nil {
		s.log.Warn("commit message generation failed", "backend", s.backend, "kind", generator.Kind(err), "error", err)
		if writer != nil && writer.Started() {
			_, errType := statusFor(err)
			return writer.Failed(err, errType, generator.Kind(err))
		}
		return writeGenerationError(c, err)
	}

	msg := CommitMessage{
		ID:      newMessageID(),
		Object:  "commit_message",
		Backend: s.backend,
		Message: text,
		Created: start.Unix(),
	}
	s.store.Save(msg)
	s.log.Info("commit message generated", "id", msg.ID, "backend", s.backend, "duration", s.clock().Sub(start))

	if writer != nil {
		if err := writer.Err(); err != nil {
			return err
		}
		return writer.Complete(msg)
	}
	return c.JSON(http.StatusOK, msg)
}

func (s *Server) handleGet(c *echo.Context) error {
	msg, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "commit message not found")
	}
	return c.JSON(http.StatusOK, msg)
}

func (s *Server) handleDelete(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "commit message not found")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"id":      id,
		"object":  "commit_message.deleted",
		"deleted": true,
	})
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: version.Resolve().Version})
}
