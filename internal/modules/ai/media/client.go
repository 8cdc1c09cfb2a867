// Package media talks to the asynchronous generative media provider: it submits
// image/video jobs and polls them until the provider reports a terminal state.
package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/reusedev/shot-hub/config"
	"github.com/reusedev/shot-hub/internal/consts"
	"github.com/reusedev/shot-hub/internal/modules/ai/sign"
	"github.com/reusedev/shot-hub/internal/modules/http_client"
	"github.com/reusedev/shot-hub/internal/modules/logs"
	"github.com/reusedev/shot-hub/tools"
)

const maxRecordedBody = 2000

type Client struct {
	supplier   consts.ModelSupplier
	baseURL    string
	token      string
	credential sign.Credential
	videoModel string
	imageModel string
	dialect    dialect
	client     *http_client.HttpClient
	recorder   InvokeRecorder
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
}

type Option func(c *Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = &http_client.HttpClient{HttpClient: hc}
	}
}

func WithRecorder(recorder InvokeRecorder) Option {
	return func(c *Client) {
		c.recorder = recorder
	}
}

// WithSleep replaces the wait between poll attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		c.sleep = sleep
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

func NewClient(cfg config.Provider, opts ...Option) (*Client, error) {
	supplier := consts.ModelSupplier(cfg.Supplier)
	d, err := dialectOf(supplier)
	if err != nil {
		return nil, err
	}
	c := &Client{
		supplier: supplier,
		baseURL:  cfg.BaseURL,
		token:    cfg.Token,
		credential: sign.Credential{
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Region:    cfg.Region,
			Service:   cfg.Service,
		},
		videoModel: cfg.VideoModel,
		imageModel: cfg.ImageModel,
		dialect:    d,
		client:     http_client.NewWithTimeout(cfg.RequestTimeout),
		sleep:      sleepContext,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Supplier() consts.ModelSupplier {
	return c.supplier
}

// Verify reports missing credentials or models for the given kinds.
func (c *Client) Verify(kinds ...consts.MediaKind) error {
	var missing []string
	if c.baseURL == "" {
		missing = append(missing, "base url")
	}
	switch c.supplier {
	case consts.Ark:
		if c.token == "" {
			missing = append(missing, "token")
		}
	case consts.Visual:
		if err := c.credential.Verify(); err != nil {
			return fmt.Errorf("%w: %v", ErrMissingCredential, err)
		}
	}
	for _, kind := range kinds {
		if c.model(kind) == "" {
			missing = append(missing, kind.String()+" model")
		}
	}
	if len(missing) != 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredential, strings.Join(missing, ", "))
	}
	return nil
}

func (c *Client) model(kind consts.MediaKind) string {
	if kind == consts.KindImage {
		return c.imageModel
	}
	return c.videoModel
}

// Submit hands a job to the provider and returns the provider task id.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if !req.Kind.Valid() {
		return "", fmt.Errorf("invalid media kind %q", req.Kind)
	}
	if err := c.Verify(req.Kind); err != nil {
		return "", err
	}
	cl, err := c.dialect.SubmitCall(req, c.model(req.Kind))
	if err != nil {
		return "", err
	}
	statusCode, body, consume, err := c.do(ctx, cl)
	if err != nil {
		c.record(InvokeRecord{Action: ActionSubmit, Model: c.model(req.Kind), Duration: consume, FailedRespBody: err.Error()})
		return "", err
	}
	if statusCode/100 != 2 {
		c.record(InvokeRecord{Action: ActionSubmit, Model: c.model(req.Kind), StatusCode: statusCode, Duration: consume, FailedRespBody: string(body)})
		return "", &ProviderRejectedError{StatusCode: statusCode, Body: string(body)}
	}
	taskID, err := c.dialect.ParseSubmit(body)
	if err != nil {
		logs.Logger.Warn().Err(err).Str("supplier", c.supplier.String()).Str("body", string(body)).Msg("media submit rejected")
		c.record(InvokeRecord{Action: ActionSubmit, Model: c.model(req.Kind), StatusCode: statusCode, Duration: consume, FailedRespBody: string(body)})
		return "", &ProviderRejectedError{StatusCode: statusCode, Body: string(body)}
	}
	c.record(InvokeRecord{ProviderTaskID: taskID, Action: ActionSubmit, Model: c.model(req.Kind), StatusCode: statusCode, Duration: consume})
	return taskID, nil
}

// Poll queries the task until it succeeds, fails, or the budget runs out.
// There is no wait after the last attempt.
func (c *Client) Poll(ctx context.Context, taskID string, kind consts.MediaKind, opts PollOptions) (string, error) {
	opts = opts.withDefaults()
	var deadline time.Time
	if opts.MaxWait > 0 {
		deadline = c.now().Add(opts.MaxWait)
	}
	var lastErr error
	attempts := 0
	for attempts < opts.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		attempts++
		ret, err := c.query(ctx, taskID, kind)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			logs.Logger.Warn().Err(err).Str("supplier", c.supplier.String()).Str("provider_task_id", taskID).
				Int("attempt", attempts).Msg("media poll error")
		} else {
			switch ret.State {
			case stateSucceeded:
				return ret.URL, nil
			case stateFailed:
				return "", &ProviderTaskFailedError{TaskID: taskID, Reason: ret.Reason}
			}
		}
		if attempts == opts.MaxAttempts {
			break
		}
		if !deadline.IsZero() && !c.now().Before(deadline) {
			break
		}
		if err := c.sleep(ctx, opts.Interval); err != nil {
			return "", err
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("%w: task %s after %d attempts, last error: %v", ErrProviderTimeout, taskID, attempts, lastErr)
	}
	return "", fmt.Errorf("%w: task %s after %d attempts", ErrProviderTimeout, taskID, attempts)
}

func (c *Client) query(ctx context.Context, taskID string, kind consts.MediaKind) (pollResult, error) {
	statusCode, body, consume, err := c.do(ctx, c.dialect.QueryCall(taskID, kind, c.model(kind)))
	if err != nil {
		c.record(InvokeRecord{ProviderTaskID: taskID, Action: ActionPoll, Model: c.model(kind), Duration: consume, FailedRespBody: err.Error()})
		return pollResult{}, err
	}
	if statusCode/100 != 2 {
		c.record(InvokeRecord{ProviderTaskID: taskID, Action: ActionPoll, Model: c.model(kind), StatusCode: statusCode, Duration: consume, FailedRespBody: string(body)})
		return pollResult{}, fmt.Errorf("poll status code: %d, body: %s", statusCode, body)
	}
	ret, err := c.dialect.ParseQuery(body, kind)
	record := InvokeRecord{ProviderTaskID: taskID, Action: ActionPoll, Model: c.model(kind), StatusCode: statusCode, Duration: consume}
	if err != nil || ret.State == stateFailed {
		record.FailedRespBody = string(body)
	}
	c.record(record)
	return ret, err
}

func (c *Client) do(ctx context.Context, cl call) (int, []byte, time.Duration, error) {
	var payload []byte
	if cl.Body != nil {
		data, err := jsoniter.Marshal(cl.Body)
		if err != nil {
			return 0, nil, 0, err
		}
		payload = data
	}
	fullURL := tools.FullURL(c.baseURL, cl.Path)
	headers := map[string]string{"Content-Type": "application/json"}
	switch c.supplier {
	case consts.Ark:
		headers["Authorization"] = "Bearer " + c.token
	case consts.Visual:
		signed, err := sign.NewSigner(c.credential).WithClock(c.now).Sign(cl.Method, fullURL, payload)
		if err != nil {
			return 0, nil, 0, err
		}
		headers = signed
	}
	options := []http_client.RequestOption{
		http_client.WithHeaders(headers),
		http_client.WithContext(ctx),
	}
	if payload != nil {
		options = append(options, http_client.WithBody(payload))
	}
	req, err := c.client.NewRequest(cl.Method, fullURL, options...)
	if err != nil {
		return 0, nil, 0, err
	}
	reqAt := time.Now()
	resp, err := c.client.Do(req)
	consume := time.Since(reqAt)
	if err != nil {
		return 0, nil, consume, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, consume, err
	}
	logs.Logger.Info().
		Str("supplier", c.supplier.String()).
		Str("path", req.URL.Path).
		Str("query", req.URL.RawQuery).
		Str("method", req.Method).
		Int("status_code", resp.StatusCode).
		Dur("req_consume_ms", consume).
		Msg("media request")
	return resp.StatusCode, body, consume, nil
}

func (c *Client) record(r InvokeRecord) {
	if c.recorder == nil {
		return
	}
	r.Supplier = c.supplier.String()
	r.FailedRespBody = tools.TruncateUTF8(r.FailedRespBody, maxRecordedBody)
	c.recorder.RecordInvoke(r)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

