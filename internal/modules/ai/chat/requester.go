package chat

import (
	"context"
	"net/http"
	"time"

	"github.com/reusedev/shot-hub/internal/modules/http_client"
	"github.com/reusedev/shot-hub/internal/modules/logs"
	"github.com/reusedev/shot-hub/tools"
)

type Requester struct {
	baseURL      string
	token        string
	client       *http_client.HttpClient
	RequestTypes RequestContent
	Parser       Parser
}

func NewRequester(baseURL, token string, client *http_client.HttpClient, requestTypes RequestContent, parser Parser) *Requester {
	return &Requester{
		baseURL:      baseURL,
		token:        token,
		client:       client,
		RequestTypes: requestTypes,
		Parser:       parser,
	}
}

func (r *Requester) Do(ctx context.Context, model string) (*CommonResponse, error) {
	body, err := r.RequestTypes.Body()
	if err != nil {
		return nil, err
	}
	req, err := r.client.NewRequest(
		http.MethodPost,
		tools.FullURL(r.baseURL, r.RequestTypes.Path()),
		http_client.WithHeader("Authorization", "Bearer "+r.token),
		http_client.WithHeader("Content-Type", r.RequestTypes.ContentType()),
		http_client.WithBody(body),
		http_client.WithContext(ctx),
	)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := r.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	logs.Logger.Info().
		Str("model", model).
		Str("path", r.RequestTypes.Path()).
		Str("method", req.Method).
		Int("status_code", resp.StatusCode).
		Dur("duration", duration).
		Msg("chat request")
	ret := r.RequestTypes.InitResponse(model, duration)
	err = r.Parser.Parse(resp, ret)
	if err != nil {
		return nil, err
	}
	return ret, nil
}
