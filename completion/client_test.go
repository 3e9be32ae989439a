package completion_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"i4.energy/across/aisms/completion"
	"i4.energy/across/aisms/history"
)

var conversation = []history.Message{
	{Role: history.RoleSystem, Content: "be brief"},
	{Role: history.RoleUser, Content: "hi"},
}

func TestClientChat(t *testing.T) {
	var got struct {
		Model    string            `json:"model"`
		Messages []history.Message `json:"messages"`
		Stream   *bool             `json:"stream"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello!"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	client := completion.NewClient(completion.Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"})

	reply, err := client.Chat(context.Background(), conversation)
	require.NoError(t, err)
	require.Equal(t, "hello!", reply)

	require.Equal(t, completion.DefaultModel, got.Model)
	require.Equal(t, conversation, got.Messages)
	require.NotNil(t, got.Stream)
	require.False(t, *got.Stream)
}

func TestClientCompleteFallback(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "Server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
			},
		},
		{
			name: "Malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"choices":`))
			},
		},
		{
			name: "No choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"choices":[]}`))
			},
		},
		{
			name: "Too slow",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(time.Second):
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client := completion.NewClient(completion.Config{
				BaseURL: srv.URL,
				Timeout: 100 * time.Millisecond,
			})

			_, err := client.Chat(context.Background(), conversation)
			require.Error(t, err)
			require.Equal(t, completion.FallbackReply, client.Complete(context.Background(), conversation))
		})
	}
}

func TestClientCustomFallback(t *testing.T) {
	client := completion.NewClient(completion.Config{
		BaseURL:  "http://127.0.0.1:1",
		Fallback: "try later",
		Timeout:  100 * time.Millisecond,
	})
	require.Equal(t, "try later", client.Complete(context.Background(), conversation))
}
