package api

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
)

// SSEStreamWriter sends generation progress as server-sent events:
// message.delta per fragment, then message.completed or message.failed.
type SSEStreamWriter struct {
	w       io.Writer
	flusher func()
	seq     int
	begun   bool
	err     error
}

func NewSSEStreamWriter(c *echo.Context) (*SSEStreamWriter, error) {
	res := c.Response()
	flusher, ok := res.(interface{ Flush() })
	if !ok {
		return nil, fmt.Errorf("streaming unsupported")
	}
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")

	return &SSEStreamWriter{
		w:       res,
		flusher: flusher.Flush,
		seq:     1,
	}, nil
}

// Started reports whether any event has been written, after which the
// status code can no longer change.
func (s *SSEStreamWriter) Started() bool {
	return s.begun
}

// Err is the first write error seen by EmitDelta.
func (s *SSEStreamWriter) Err() error {
	return s.err
}

// EmitDelta has the shape of inference.StreamFunc. A failed write is kept
// for Err and later deltas are dropped.
func (s *SSEStreamWriter) EmitDelta(delta string) {
	if s.err != nil || delta == "" {
		return
	}
	s.err = s.send(streamEvent{Type: "message.delta", Delta: delta})
}

func (s *SSEStreamWriter) Complete(msg CommitMessage) error {
	return s.send(streamEvent{Type: "message.completed", Message: &msg})
}

func (s *SSEStreamWriter) Failed(err error, errType, code string) error {
	return s.send(streamEvent{
		Type:  "message.failed",
		Error: &ResponseError{Message: err.Error(), Type: errType, Code: code},
	})
}

func (s *SSEStreamWriter) send(ev streamEvent) error {
	s.begun = true
	ev.SequenceNumber = s.seq
	s.seq++
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return err
	}
	s.flusher()
	return nil
}
