package media

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/reusedev/shot-hub/internal/consts"
)

type call struct {
	Method string
	Path   string
	Body   any
}

// dialect is the wire format of one supplier.
type dialect interface {
	SubmitCall(req SubmitRequest, model string) (call, error)
	QueryCall(taskID string, kind consts.MediaKind, model string) call
	ParseSubmit(body []byte) (string, error)
	ParseQuery(body []byte, kind consts.MediaKind) (pollResult, error)
}

func dialectOf(supplier consts.ModelSupplier) (dialect, error) {
	switch supplier {
	case consts.Ark:
		return arkDialect{}, nil
	case consts.Visual:
		return visualDialect{}, nil
	}
	return nil, fmt.Errorf("unsupported provider supplier: %q", supplier)
}

const arkTaskPath = "/api/v3/contents/generations/tasks"

type arkDialect struct{}

type arkContent struct {
	Type     string       `json:"type"`
	Text     string       `json:"text,omitempty"`
	ImageURL *arkImageURL `json:"image_url,omitempty"`
}

type arkImageURL struct {
	URL string `json:"url"`
}

func (arkDialect) SubmitCall(req SubmitRequest, model string) (call, error) {
	text := req.Prompt
	var flags []string
	if req.Params.Resolution != "" {
		flags = append(flags, "--resolution "+req.Params.Resolution)
	}
	if req.Params.AspectRatio != "" {
		flags = append(flags, "--ratio "+req.Params.AspectRatio)
	}
	if req.Kind == consts.KindVideo && req.Params.DurationSeconds > 0 {
		flags = append(flags, fmt.Sprintf("--duration %d", req.Params.DurationSeconds))
	}
	if len(flags) != 0 {
		text = text + " " + strings.Join(flags, " ")
	}
	content := []arkContent{{Type: "text", Text: text}}
	for _, img := range req.ReferenceImages {
		content = append(content, arkContent{Type: "image_url", ImageURL: &arkImageURL{URL: img}})
	}
	return call{
		Method: http.MethodPost,
		Path:   arkTaskPath,
		Body: map[string]any{
			"model":   model,
			"content": content,
		},
	}, nil
}

func (arkDialect) QueryCall(taskID string, _ consts.MediaKind, _ string) call {
	return call{Method: http.MethodGet, Path: arkTaskPath + "/" + url.PathEscape(taskID)}
}

type visualDialect struct{}

func visualPath(action string) string {
	q := url.Values{}
	q.Set("Action", action)
	q.Set("Version", consts.VisualAPIVersion)
	return "?" + q.Encode()
}

// frames follows the 24fps+1 convention of the video models.
func frames(seconds int) int {
	return seconds*24 + 1
}

func (visualDialect) SubmitCall(req SubmitRequest, model string) (call, error) {
	body := map[string]any{
		"req_key": model,
		"prompt":  req.Prompt,
	}
	var urls, b64s []string
	for _, img := range req.ReferenceImages {
		if strings.HasPrefix(img, "http://") || strings.HasPrefix(img, "https://") {
			urls = append(urls, img)
			continue
		}
		idx := strings.Index(img, "base64,")
		if idx == -1 {
			return call{}, fmt.Errorf("reference image is neither a url nor a data uri")
		}
		b64s = append(b64s, img[idx+len("base64,"):])
	}
	if len(urls) != 0 {
		body["image_urls"] = urls
	}
	if len(b64s) != 0 {
		body["binary_data_base64"] = b64s
	}
	if req.Params.AspectRatio != "" {
		body["aspect_ratio"] = req.Params.AspectRatio
	}
	if req.Kind == consts.KindVideo && req.Params.DurationSeconds > 0 {
		body["frames"] = frames(req.Params.DurationSeconds)
	}
	if req.Kind == consts.KindImage {
		body["return_url"] = true
	}
	return call{Method: http.MethodPost, Path: visualPath(consts.VisualSubmitAction), Body: body}, nil
}

func (visualDialect) QueryCall(taskID string, _ consts.MediaKind, model string) call {
	reqJSON, _ := jsoniter.MarshalToString(map[string]any{"return_url": true})
	return call{
		Method: http.MethodPost,
		Path:   visualPath(consts.VisualResultAction),
		Body: map[string]any{
			"req_key":  model,
			"task_id":  taskID,
			"req_json": reqJSON,
		},
	}
}
