package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSession(t *testing.T) {
	var gotTitle string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/session", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Test"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotTitle = body["title"]
		fmt.Fprint(w, `{"id":"ses_1","title":"x"}`)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", map[string]string{"X-Test": "secret"})
	id, err := c.CreateSession(context.Background(), "Bridge feishu:c1")
	require.NoError(t, err)
	assert.Equal(t, "ses_1", id)
	assert.Equal(t, "Bridge feishu:c1", gotTitle)
}

func TestCreateSessionHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, nil).CreateSession(context.Background(), "t")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "nope", apiErr.Body)
}

func TestPromptBody(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/session/ses_1/message", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"info":{},"parts":[]}`)
	}))
	defer srv.Close()

	err := NewHTTPClient(srv.URL, nil).Prompt(context.Background(), PromptRequest{
		SessionID: "ses_1",
		Text:      "hello",
		Agent:     "research",
		Model:     &Model{ProviderID: "anthropic", ModelID: "claude"},
	})
	require.NoError(t, err)

	assert.Equal(t, "research", got["agent"])
	assert.Equal(t, map[string]any{"providerID": "anthropic", "modelID": "claude"}, got["model"])
	assert.Equal(t, []any{map[string]any{"type": "text", "text": "hello"}}, got["parts"])
}

func TestPromptOmitsOptionalHints(t *testing.T) {
	var raw []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewHTTPClient(srv.URL, nil).Prompt(context.Background(), PromptRequest{SessionID: "s", Text: "hi"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"parts":[{"type":"text","text":"hi"}]}`, string(raw))
}

func TestReplyPermission(t *testing.T) {
	var path, reply string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		reply = body["reply"]
		fmt.Fprint(w, "true")
	}))
	defer srv.Close()

	require.NoError(t, NewHTTPClient(srv.URL, nil).ReplyPermission(context.Background(), "per_1", PermissionReject))
	assert.Equal(t, "/permission/per_1/reply", path)
	assert.Equal(t, "reject", reply)
}

func TestSubscribeStreamsEvents(t *testing.T) {
	frames := []string{
		": keep-alive",
		"",
		`data: {"type":"server.connected","properties":{}}`,
		"",
		`data: {"type":"message.part.updated","properties":{"part":{"sessionID":"s1","type":"text","text":"Hi"}}}`,
		"",
		"data: not json",
		"",
		`data: {"type":"session.status",`,
		`data: "properties":{"sessionID":"s1","status":{"type":"idle"}}}`,
		"",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/event", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, strings.Join(frames, "\n")+"\n")
	}))
	defer srv.Close()

	stream, err := NewHTTPClient(srv.URL, nil).Subscribe(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	ev, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, PartialResponse{SessionID: "s1", Text: "Hi"}, ev)

	ev, err = stream.Next()
	require.NoError(t, err)
	assert.Equal(t, SessionIdle{SessionID: "s1"}, ev)

	_, err = stream.Next()
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestSubscribeHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, nil).Subscribe(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}
