package chat

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/reusedev/shot-hub/config"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"Here you go:\n```\n{\"a\":{\"b\":2}}\n```\nEnjoy", `{"a":{"b":2}}`},
		{"Sure! {\"a\":1} hope it helps", `{"a":1}`},
	} {
		got, err := ExtractJSON(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got)
	}
	_, err := ExtractJSON("no json here")
	require.True(t, errors.Is(err, ErrNoJSON))
}

func TestCompleteJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer chat-token", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.Equal(t, "vision-model", jsoniter.Get(body, "model").ToString())
		require.Equal(t, "image_url", jsoniter.Get(body, "messages", 1, "content", 0, "type").ToString())
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"` +
			"```json\\n{\\\"product_name\\\":\\\"mug\\\"}\\n```" + `"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(config.Chat{BaseURL: srv.URL, Token: "chat-token", Model: "vision-model"}, srv.Client())
	var out struct {
		ProductName string `json:"product_name"`
	}
	err := c.CompleteJSON(context.Background(), []Message{
		SystemMessage("describe"),
		UserMessage("what is it", "data:image/png;base64,aGVsbG8="),
	}, &out)
	require.NoError(t, err)
	require.Equal(t, "mug", out.ProductName)
}

func TestCompleteStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer srv.Close()

	c := NewClient(config.Chat{BaseURL: srv.URL, Token: "t", Model: "m"}, srv.Client())
	_, err := c.Complete(context.Background(), []Message{UserMessage("hi")})
	var statusErr *StatusCodeError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
}

func TestVerify(t *testing.T) {
	err := NewClient(config.Chat{BaseURL: "http://x"}, nil).Verify()
	require.True(t, errors.Is(err, ErrMissingCredential))
	require.Contains(t, err.Error(), "token")
	require.Contains(t, err.Error(), "model")
	require.NoError(t, NewClient(config.Chat{BaseURL: "http://x", Token: "t", Model: "m"}, nil).Verify())
}
