package response

import (
	"context"
	"time"

	"github.com/jinzhu/copier"
	"github.com/reusedev/shot-hub/internal/modules/logs"
	"github.com/reusedev/shot-hub/internal/modules/model"
)

// URLResolver turns a stored object key into a readable URL.
type URLResolver interface {
	URL(ctx context.Context, key string) (string, error)
}

type Task struct {
	TaskNo          string    `json:"task_no"`
	Kind            string    `json:"kind"`
	Prompt          string    `json:"prompt"`
	Resolution      string    `json:"resolution"`
	AspectRatio     string    `json:"aspect_ratio"`
	Duration        int       `json:"duration"`
	Status          string    `json:"status"`
	Supplier        string    `json:"supplier"`
	ProviderTaskId  string    `json:"provider_task_id,omitempty" copier:"-"`
	ExternalURL     string    `json:"external_url,omitempty"`
	InternalURL     *string   `json:"internal_url" copier:"-"`
	FailedReason    string    `json:"failed_reason,omitempty"`
	ReconcileCount  int       `json:"reconcile_count"`
	ReferenceImages int       `json:"reference_images" copier:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewTask hides inline reference image data; only the count is returned.
// internal_url is resolved from the stored key on every read.
func NewTask(ctx context.Context, t model.GenerationTask, urls URLResolver) (Task, error) {
	var resp Task
	if err := copier.Copy(&resp, &t); err != nil {
		return Task{}, err
	}
	resp.ProviderTaskId = t.ProviderTaskId.String
	if t.InternalKey.Valid && t.InternalKey.String != "" && urls != nil {
		u, err := urls.URL(ctx, t.InternalKey.String)
		if err != nil {
			logs.Logger.Warn().Err(err).Str("task_no", t.TaskNo).Str("internal_key", t.InternalKey.String).Msg("resolve internal url")
		} else {
			resp.InternalURL = &u
		}
	}
	resp.ReferenceImages = len(t.ReferenceImages)
	return resp, nil
}
