package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClientGenerateStreams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var payload struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if len(payload.Messages) != 2 || payload.Messages[0].Role != "system" || payload.Messages[1].Content != "Why?" {
			t.Errorf("unexpected messages: %+v", payload.Messages)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Because", " light"} {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client, err := NewFromEnv(Config{
		Provider:   ProviderOpenAI,
		APIKey:     "test-key",
		Endpoint:   server.URL + "/v1",
		Model:      "gpt-test",
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)
	assert.Equal(t, "OpenAI (gpt-test)", client.Name())

	var snapshots []string
	err = client.Generate(context.Background(), GenerateRequest{Prompt: "Why?", System: "Be brief."}, func(snapshot string) error {
		snapshots = append(snapshots, snapshot)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Because", "Because light"}, snapshots)
}

func TestOpenAIClientEnsureModelChecksExistence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[{"id":"gpt-test","object":"model"}]}`))
	}))
	defer server.Close()

	client, err := NewFromEnv(Config{Provider: ProviderOpenAI, APIKey: "k", Endpoint: server.URL + "/v1", HTTPClient: server.Client()})
	require.NoError(t, err)

	require.NoError(t, client.EnsureModel(context.Background(), "gpt-test"))
	assert.ErrorIs(t, client.EnsureModel(context.Background(), "gpt-missing"), ErrModelNotFound)
}
