package api

import (
	"errors"
	"net/http"

	"github.com/samcharles93/committer/internal/generator"
	"github.com/samcharles93/committer/internal/inference"
	"github.com/samcharles93/committer/internal/remote"
	"github.com/samcharles93/committer/internal/tokenizer"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// statusFor maps a generation failure to an HTTP status and error type.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, inference.ErrInvalidConfig),
		errors.Is(err, tokenizer.ErrInputTooLong):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, remote.ErrRemoteRejected),
		errors.Is(err, remote.ErrRemoteUnavailable),
		errors.Is(err, generator.ErrEmptyMessage):
		return http.StatusBadGateway, "upstream_error"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}
