package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStreamClosed is returned by Stream.Next once the server ends the stream.
	ErrStreamClosed = errors.New("event stream closed")
	// ErrInvalidModel is returned by ParseModel for strings without a provider.
	ErrInvalidModel = errors.New("model must be providerID/modelID")
)

// PermissionReply is the decision sent back for a permission request.
type PermissionReply string

const (
	PermissionOnce   PermissionReply = "once"
	PermissionAlways PermissionReply = "always"
	PermissionReject PermissionReply = "reject"
)

// Model selects a provider/model pair for a prompt.
type Model struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

// ParseModel splits "providerID/modelID" on the first slash; model ids may
// contain further slashes.
func ParseModel(s string) (Model, error) {
	provider, model, ok := strings.Cut(s, "/")
	if !ok || provider == "" || model == "" {
		return Model{}, fmt.Errorf("%w: %q", ErrInvalidModel, s)
	}
	return Model{ProviderID: provider, ModelID: model}, nil
}

func (m Model) String() string { return m.ProviderID + "/" + m.ModelID }

// PromptRequest is one user turn submitted to a session.
type PromptRequest struct {
	SessionID string
	Text      string
	Agent     string // optional
	Model     *Model // optional
}

// Stream is an open subscription to the server's event stream.
type Stream interface {
	// Next blocks until the next bridge-relevant event arrives.
	// It returns ErrStreamClosed when the server ends the stream.
	Next() (Event, error)
	Close() error
}

// Client is the subset of the agent server API the bridge uses.
type Client interface {
	CreateSession(ctx context.Context, title string) (string, error)
	// Prompt submits a turn. The server may hold the call open until the turn
	// finishes; progress arrives on the event stream.
	Prompt(ctx context.Context, req PromptRequest) error
	Subscribe(ctx context.Context) (Stream, error)
	ReplyPermission(ctx context.Context, requestID string, reply PermissionReply) error
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}
