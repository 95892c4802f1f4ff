package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubCompleter struct {
	text   string
	err    error
	prompt string
}

func (s *stubCompleter) Complete(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.text, s.err
}

func TestAssistant_NoKeyFallsBack(t *testing.T) {
	a := NewAssistant(nil, nil)
	require.Equal(t, "AI Strategy unavailable (No API Key).", a.Strategy(context.Background(), "PUBG Mobile", "Erangel", "Squad"))
	require.Equal(t, chatOffline, a.Chat(context.Background(), "hi", ""))
}

func TestAssistant_Strategy(t *testing.T) {
	stub := &stubCompleter{text: "  Drop Pochinki.  "}
	a := NewAssistant(stub, nil)

	require.Equal(t, "Drop Pochinki.", a.Strategy(context.Background(), "PUBG Mobile", "Erangel", "Squad"))
	require.Contains(t, stub.prompt, "Erangel")
	require.Contains(t, stub.prompt, "Squad mode")

	stub.text = "   "
	require.Equal(t, "Stay low, move fast, and aim true.", a.Strategy(context.Background(), "PUBG Mobile", "Erangel", "Squad"))

	stub.err = errors.New("503")
	require.Equal(t, strategyFallback, a.Strategy(context.Background(), "PUBG Mobile", "Erangel", "Squad"))
}

func TestAssistant_Chat(t *testing.T) {
	stub := &stubCompleter{text: "GG, check the wallet tab."}
	a := NewAssistant(stub, nil)

	require.Equal(t, "GG, check the wallet tab.", a.Chat(context.Background(), "where is my deposit?", "User: Shadow, Balance: 450"))
	require.Contains(t, stub.prompt, "User: Shadow")

	stub.text = ""
	require.Equal(t, chatEmpty, a.Chat(context.Background(), "??", ""))

	stub.err = errors.New("timeout")
	require.Equal(t, chatFallback, a.Chat(context.Background(), "hello", ""))
}

func TestOpenAICompleter_AgainstFakeEndpoint(t *testing.T) {
	var mu sync.Mutex
	var gotPath, gotModel, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		gotPath, gotModel, gotAuth = r.URL.Path, body.Model, r.Header.Get("Authorization")
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "test-model",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "Hot drop, then rotate early."}}]
		}`))
	}))
	defer srv.Close()

	c := NewOpenAICompleter("sk-test", srv.URL+"/v1/", "test-model")
	text, err := c.Complete(context.Background(), "tip please")
	require.NoError(t, err)
	require.Equal(t, "Hot drop, then rotate early.", text)

	mu.Lock()
	defer mu.Unlock()
	require.True(t, strings.HasSuffix(gotPath, "/chat/completions"), gotPath)
	require.Equal(t, "test-model", gotModel)
	require.Equal(t, "Bearer sk-test", gotAuth)
}

func TestOpenAICompleter_ServerErrorNoRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewAssistant(NewOpenAICompleter("sk-test", srv.URL+"/v1/", "test-model"), nil)
	require.Equal(t, chatFallback, a.Chat(context.Background(), "hello", ""))
	require.Equal(t, int32(1), hits.Load())
}
