package media

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/reusedev/shot-hub/internal/consts"
)

func (arkDialect) ParseSubmit(body []byte) (string, error) {
	id := jsoniter.Get(body, "id").ToString()
	if id == "" {
		if msg := jsoniter.Get(body, "error", "message").ToString(); msg != "" {
			return "", fmt.Errorf("submit rejected: %s", msg)
		}
		return "", fmt.Errorf("task id not found in submit response")
	}
	return id, nil
}

func (arkDialect) ParseQuery(body []byte, kind consts.MediaKind) (pollResult, error) {
	status := jsoniter.Get(body, "status").ToString()
	switch status {
	case "queued", "running":
		return pollResult{State: statePending}, nil
	case "succeeded":
		field := "video_url"
		if kind == consts.KindImage {
			field = "image_url"
		}
		u := jsoniter.Get(body, "content", field).ToString()
		if u == "" {
			return pollResult{State: stateFailed, Reason: "succeeded without " + field}, nil
		}
		return pollResult{State: stateSucceeded, URL: u}, nil
	case "failed":
		reason := jsoniter.Get(body, "error", "message").ToString()
		if reason == "" {
			reason = "failed"
		}
		return pollResult{State: stateFailed, Reason: reason}, nil
	case "cancelled":
		return pollResult{State: stateFailed, Reason: "cancelled"}, nil
	}
	return pollResult{}, fmt.Errorf("unknown task status %q", status)
}

func (visualDialect) ParseSubmit(body []byte) (string, error) {
	if code := jsoniter.Get(body, "code").ToInt(); code != consts.VisualSuccessCode {
		return "", fmt.Errorf("submit rejected, code: %d, message: %s", code, jsoniter.Get(body, "message").ToString())
	}
	id := jsoniter.Get(body, "data", "task_id").ToString()
	if id == "" {
		return "", fmt.Errorf("task id not found in submit response")
	}
	return id, nil
}

func visualTransient(code int) bool {
	switch code {
	case consts.VisualQPSLimitCode, consts.VisualConcurrencyLimitCode,
		consts.VisualInternalErrorCode, consts.VisualInternalRPCErrorCode:
		return true
	}
	return false
}

// ParseQuery returns an error for throttling and internal codes so the poll
// loop spends an attempt and retries.
func (visualDialect) ParseQuery(body []byte, kind consts.MediaKind) (pollResult, error) {
	if code := jsoniter.Get(body, "code").ToInt(); code != consts.VisualSuccessCode {
		if visualTransient(code) {
			return pollResult{}, fmt.Errorf("transient code %d: %s", code, jsoniter.Get(body, "message").ToString())
		}
		return pollResult{
			State:  stateFailed,
			Reason: fmt.Sprintf("code %d: %s", code, jsoniter.Get(body, "message").ToString()),
		}, nil
	}
	status := jsoniter.Get(body, "data", "status").ToString()
	switch status {
	case "in_queue", "generating":
		return pollResult{State: statePending}, nil
	case "done":
		var u string
		if kind == consts.KindImage {
			u = jsoniter.Get(body, "data", "image_urls", 0).ToString()
		} else {
			u = jsoniter.Get(body, "data", "video_url").ToString()
		}
		if u == "" {
			return pollResult{State: stateFailed, Reason: "done without asset url"}, nil
		}
		return pollResult{State: stateSucceeded, URL: u}, nil
	case "not_found", "expired":
		return pollResult{State: stateFailed, Reason: status}, nil
	}
	return pollResult{}, fmt.Errorf("unknown task status %q", status)
}
