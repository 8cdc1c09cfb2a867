package chat

import (
	"time"
)

type RequestContent interface {
	Body() (any, error)
	ContentType() string
	Path() string
	InitResponse(model string, duration time.Duration) *CommonResponse
}

type CommonRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

type Message struct {
	Role    string    `json:"role"`
	Content []Content `json:"content"`
}

type Content struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

func SystemMessage(text string) Message {
	return Message{Role: "system", Content: []Content{{Type: "text", Text: text}}}
}

func UserMessage(text string, imageURLs ...string) Message {
	content := make([]Content, 0, len(imageURLs)+1)
	for _, u := range imageURLs {
		content = append(content, Content{Type: "image_url", ImageURL: &ImageURL{URL: u}})
	}
	content = append(content, Content{Type: "text", Text: text})
	return Message{Role: "user", Content: content}
}

func (c *CommonRequest) Body() (any, error) {
	return c, nil
}

func (c *CommonRequest) ContentType() string {
	return "application/json"
}

func (c *CommonRequest) Path() string {
	return "/v1/chat/completions"
}

func (c *CommonRequest) InitResponse(model string, duration time.Duration) *CommonResponse {
	return &CommonResponse{
		Model:    model,
		Duration: duration,
	}
}
