package api

// CommitMessageRequest is the body of POST /v1/commit-messages.
type CommitMessageRequest struct {
	Diff    string  `json:"diff"`
	Context *string `json:"context,omitempty"`
	Stream  bool    `json:"stream,omitempty"`
}

// CommitMessage is a generated message as returned and stored by the server.
type CommitMessage struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Backend string `json:"backend,omitempty"`
	Message string `json:"message"`
	Created int64  `json:"created"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type streamEvent struct {
	Type           string         `json:"type"`
	Delta          string         `json:"delta,omitempty"`
	Message        *CommitMessage `json:"message,omitempty"`
	Error          *ResponseError `json:"error,omitempty"`
	SequenceNumber int            `json:"sequence_number"`
}
