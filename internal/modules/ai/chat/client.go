// Package chat calls an OpenAI-compatible chat completions endpoint.
package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/reusedev/shot-hub/config"
	"github.com/reusedev/shot-hub/internal/modules/http_client"
)

var ErrMissingCredential = errors.New("chat credential missing")

type Client struct {
	baseURL string
	token   string
	model   string
	client  *http_client.HttpClient
}

func NewClient(cfg config.Chat, hc *http.Client) *Client {
	client := http_client.NewWithTimeout(cfg.Timeout)
	if hc != nil {
		client = &http_client.HttpClient{HttpClient: hc}
	}
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		model:   cfg.Model,
		client:  client,
	}
}

func (c *Client) Verify() error {
	var missing []string
	if c.baseURL == "" {
		missing = append(missing, "base url")
	}
	if c.token == "" {
		missing = append(missing, "token")
	}
	if c.model == "" {
		missing = append(missing, "model")
	}
	if len(missing) != 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredential, strings.Join(missing, ", "))
	}
	return nil
}

func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	request := &CommonRequest{Model: c.model, Messages: messages}
	resp, err := NewRequester(c.baseURL, c.token, c.client, request, &CommonParser{}).Do(ctx, c.model)
	if err != nil {
		return "", err
	}
	return resp.Content()
}

// CompleteJSON asks for a JSON object and decodes it into v.
func (c *Client) CompleteJSON(ctx context.Context, messages []Message, v any) error {
	request := &CommonRequest{
		Model:          c.model,
		Messages:       messages,
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	}
	resp, err := NewRequester(c.baseURL, c.token, c.client, request, &CommonParser{}).Do(ctx, c.model)
	if err != nil {
		return err
	}
	content, err := resp.Content()
	if err != nil {
		return err
	}
	raw, err := ExtractJSON(content)
	if err != nil {
		return err
	}
	if err := jsoniter.UnmarshalFromString(raw, v); err != nil {
		return fmt.Errorf("decode chat json: %w", err)
	}
	return nil
}
