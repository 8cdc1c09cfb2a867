package chat

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/reusedev/shot-hub/internal/modules/logs"
)

var (
	ErrEmptyContent = errors.New("chat response has no content")
	ErrNoJSON       = errors.New("chat content has no json object")
)

type StatusCodeError struct {
	StatusCode int
	Body       string
}

func (e *StatusCodeError) Error() string {
	return fmt.Sprintf("chat status code: %d, body: %s", e.StatusCode, e.Body)
}

type CommonResponse struct {
	Model      string        `json:"model"`
	Duration   time.Duration `json:"duration"`
	Body       string        `json:"body"`
	StatusCode int           `json:"status_code"`
}

func (c *CommonResponse) RawBody() string {
	return c.Body
}

func (c *CommonResponse) Succeed() bool {
	return c.StatusCode == http.StatusOK
}

// Content is the first choice's message text.
func (c *CommonResponse) Content() (string, error) {
	if !c.Succeed() {
		return "", &StatusCodeError{StatusCode: c.StatusCode, Body: c.Body}
	}
	content := jsoniter.Get([]byte(c.Body), "choices", 0, "message", "content").ToString()
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyContent
	}
	return content, nil
}

type Parser interface {
	Parse(resp *http.Response, response *CommonResponse) error
}

type CommonParser struct{}

func (c *CommonParser) Parse(resp *http.Response, response *CommonResponse) error {
	response.StatusCode = resp.StatusCode
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		logs.Logger.Warn().
			Str("model", response.Model).
			Str("path", resp.Request.URL.Path).
			Str("method", resp.Request.Method).
			Int("status_code", resp.StatusCode).
			Dur("duration", response.Duration).
			Str("body", string(body)).
			Msg("chat request failed")
	}
	response.Body = string(body)
	return nil
}

var jsonBlock = regexp.MustCompile("```(?:json)?\\s*\\n?([\\s\\S]*?)\\n?```")

// ExtractJSON pulls the JSON object out of model text that may wrap it in a
// markdown fence or surrounding prose.
func ExtractJSON(content string) (string, error) {
	if m := jsonBlock.FindStringSubmatch(content); len(m) == 2 {
		content = m[1]
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end < start {
		return "", ErrNoJSON
	}
	return content[start : end+1], nil
}
