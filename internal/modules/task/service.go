// Package task runs single generation tasks: submit to the provider, poll,
// mirror the result and record every transition on the task row.
package task

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/reusedev/shot-hub/internal/consts"
	"github.com/reusedev/shot-hub/internal/modules/ai/media"
	"github.com/reusedev/shot-hub/internal/modules/logs"
	"github.com/reusedev/shot-hub/internal/modules/model"
	"github.com/reusedev/shot-hub/internal/modules/observer"
	"github.com/reusedev/shot-hub/internal/modules/pipeline"
	"github.com/reusedev/shot-hub/internal/modules/queue"
	"github.com/reusedev/shot-hub/tools"
	"gorm.io/datatypes"
)

var ErrInvalidRequest = errors.New("invalid task request")

type Store interface {
	Create(ctx context.Context, task *model.GenerationTask) error
	ByTaskNo(ctx context.Context, taskNo string) (model.GenerationTask, error)
	AttachProviderTask(ctx context.Context, taskNo, providerTaskId string) error
	Complete(ctx context.Context, taskNo, externalURL, internalKey string, metadata datatypes.JSON) (bool, error)
	Fail(ctx context.Context, taskNo, reason string) (bool, error)
	IncrReconcileCount(ctx context.Context, taskNo string) error
	ListReconcilable(ctx context.Context, createdBefore time.Time, limit int) ([]model.GenerationTask, error)
	ListUnsubmitted(ctx context.Context, createdBefore time.Time) ([]model.GenerationTask, error)
}

type MediaClient interface {
	Submit(ctx context.Context, req media.SubmitRequest) (string, error)
	Poll(ctx context.Context, taskID string, kind consts.MediaKind, opts media.PollOptions) (string, error)
}

type ArtifactMirror interface {
	Mirror(ctx context.Context, sourceURL, destPath, contentType string) (string, bool)
}

type CreateRequest struct {
	Kind            consts.MediaKind
	Prompt          string
	ReferenceImages []string
	Params          media.Params
}

type Service struct {
	store     Store
	media     MediaClient
	mirror    ArtifactMirror
	queue     *queue.TaskQueue
	poll      media.PollOptions
	supplier  string
	observers []observer.Observer

	inflight sync.Map
}

func NewService(store Store, mediaClient MediaClient, mirror ArtifactMirror, q *queue.TaskQueue, poll media.PollOptions, supplier string) *Service {
	return &Service{
		store:    store,
		media:    mediaClient,
		mirror:   mirror,
		queue:    q,
		poll:     poll,
		supplier: supplier,
	}
}

func (s *Service) Attach(o observer.Observer) {
	s.observers = append(s.observers, o)
}

func (s *Service) Notify(event string, task model.GenerationTask) {
	for _, o := range s.observers {
		o.Update(event, &task)
	}
}

// Create stores a pending task and queues it for execution.
func (s *Service) Create(ctx context.Context, req CreateRequest) (model.GenerationTask, error) {
	if !req.Kind.Valid() {
		return model.GenerationTask{}, fmt.Errorf("%w: kind must be image or video", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return model.GenerationTask{}, fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	refs := make(datatypes.JSONSlice[string], 0, len(req.ReferenceImages))
	for i, src := range req.ReferenceImages {
		normalized, err := tools.NormalizeReferenceImage(src)
		if err != nil {
			return model.GenerationTask{}, fmt.Errorf("%w: reference image %d: %v", ErrInvalidRequest, i, err)
		}
		refs = append(refs, normalized)
	}
	task := model.GenerationTask{
		TaskNo:          uuid.NewString(),
		Kind:            req.Kind.String(),
		Prompt:          req.Prompt,
		ReferenceImages: refs,
		Resolution:      req.Params.Resolution,
		AspectRatio:     req.Params.AspectRatio,
		Duration:        req.Params.DurationSeconds,
		Status:          model.TaskStatusPending.String(),
		Supplier:        s.supplier,
	}
	if err := s.store.Create(ctx, &task); err != nil {
		return model.GenerationTask{}, err
	}
	if err := s.queue.Push(&generateJob{service: s, taskNo: task.TaskNo}); err != nil {
		// the row has no provider id, so the reconcile sweep fails it later
		logs.Logger.Err(err).Str("task_no", task.TaskNo).Msg("enqueue generation task")
		return model.GenerationTask{}, err
	}
	logs.Logger.Info().Str("task_no", task.TaskNo).Str("kind", task.Kind).Msg("generation task created")
	return task, nil
}

func (s *Service) Get(ctx context.Context, taskNo string) (model.GenerationTask, error) {
	return s.store.ByTaskNo(ctx, taskNo)
}

type generateJob struct {
	service *Service
	taskNo  string
}

func (j *generateJob) Name() string {
	return "generate:" + j.taskNo
}

func (j *generateJob) Execute(ctx context.Context) error {
	return j.service.Run(ctx, j.taskNo)
}

// Run drives one task to a terminal state or to a provider timeout.
func (s *Service) Run(ctx context.Context, taskNo string) error {
	if _, loaded := s.inflight.LoadOrStore(taskNo, struct{}{}); loaded {
		return nil
	}
	defer s.inflight.Delete(taskNo)

	task, err := s.store.ByTaskNo(ctx, taskNo)
	if err != nil {
		return err
	}
	if task.Terminal() {
		return nil
	}
	kind := consts.MediaKind(task.Kind)
	if !task.ProviderTaskId.Valid {
		providerTaskID, err := s.media.Submit(ctx, media.SubmitRequest{
			Kind:            kind,
			Prompt:          task.Prompt,
			ReferenceImages: task.ReferenceImages,
			Params: media.Params{
				Resolution:      task.Resolution,
				AspectRatio:     task.AspectRatio,
				DurationSeconds: task.Duration,
			},
		})
		if err != nil {
			if ctx.Err() == nil {
				s.fail(ctx, task, err.Error())
			}
			return err
		}
		if err := s.store.AttachProviderTask(ctx, task.TaskNo, providerTaskID); err != nil {
			logs.Logger.Err(err).Str("task_no", task.TaskNo).Msg("attach provider task")
		}
		task.ProviderTaskId.String, task.ProviderTaskId.Valid = providerTaskID, true
		logs.Logger.Info().Str("task_no", task.TaskNo).Str("provider_task_id", providerTaskID).Msg("generation task submitted")
		s.Notify(consts.EventTaskSubmitted, task)
	}
	assetURL, err := s.media.Poll(ctx, task.ProviderTaskId.String, kind, s.poll)
	return s.settle(ctx, task, assetURL, err)
}

// settle applies a poll outcome. Timeouts and cancellations leave the row
// pending with its provider id.
func (s *Service) settle(ctx context.Context, task model.GenerationTask, assetURL string, pollErr error) error {
	if pollErr != nil {
		if errors.Is(pollErr, media.ErrProviderTaskFailed) {
			var failed *media.ProviderTaskFailedError
			reason := pollErr.Error()
			if errors.As(pollErr, &failed) {
				reason = failed.Reason
			}
			s.fail(ctx, task, reason)
			return nil
		}
		logs.Logger.Warn().Err(pollErr).Str("task_no", task.TaskNo).Str("provider_task_id", task.ProviderTaskId.String).
			Msg("generation task left pending")
		return pollErr
	}
	var internalKey string
	if s.mirror != nil {
		key := outputPath(task, assetURL)
		if _, ok := s.mirror.Mirror(ctx, assetURL, key, ""); ok {
			internalKey = key
		}
	}
	metadata := mergeMetadata(task.Metadata, map[string]any{
		"supplier":         task.Supplier,
		"provider_task_id": task.ProviderTaskId.String,
		"mirrored":         internalKey != "",
	})
	applied, err := s.store.Complete(ctx, task.TaskNo, assetURL, internalKey, metadata)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	task.Status = model.TaskStatusCompleted.String()
	task.ExternalURL = assetURL
	task.InternalKey.String, task.InternalKey.Valid = internalKey, internalKey != ""
	task.Metadata = metadata
	logs.Logger.Info().Str("task_no", task.TaskNo).Str("external_url", assetURL).Str("internal_key", internalKey).
		Msg("generation task completed")
	s.Notify(consts.EventTaskCompleted, task)
	return nil
}

// mergeMetadata overlays fields on the row's existing metadata object.
func mergeMetadata(existing datatypes.JSON, fields map[string]any) datatypes.JSON {
	merged := map[string]any{}
	if len(existing) != 0 {
		if err := jsoniter.Unmarshal(existing, &merged); err != nil {
			merged = map[string]any{}
		}
	}
	for k, v := range fields {
		merged[k] = v
	}
	data, _ := jsoniter.Marshal(merged)
	return data
}

func (s *Service) fail(ctx context.Context, task model.GenerationTask, reason string) {
	applied, err := s.store.Fail(ctx, task.TaskNo, reason)
	if err != nil {
		logs.Logger.Err(err).Str("task_no", task.TaskNo).Msg("fail generation task")
		return
	}
	if !applied {
		return
	}
	task.Status = model.TaskStatusFailed.String()
	task.FailedReason = reason
	logs.Logger.Warn().Str("task_no", task.TaskNo).Str("reason", reason).Msg("generation task failed")
	s.Notify(consts.EventTaskFailed, task)
}

// outputPath is tasks/<task_no>/output.<ext>, the extension taken from the
// provider URL when it has one. Pipeline shot rows keep their run's layout.
func outputPath(task model.GenerationTask, assetURL string) string {
	if len(task.Metadata) != 0 {
		runID := jsoniter.Get(task.Metadata, "run_id").ToString()
		shot := jsoniter.Get(task.Metadata, "shot").ToInt()
		if runID != "" && shot > 0 {
			return pipeline.ShotArtifactPath(runID, shot)
		}
	}
	ext := "mp4"
	if task.Kind == consts.KindImage.String() {
		ext = "png"
	}
	if u, err := url.Parse(assetURL); err == nil {
		if e := strings.TrimPrefix(path.Ext(u.Path), "."); e != "" && len(e) <= 5 {
			ext = strings.ToLower(e)
		}
	}
	return fmt.Sprintf("tasks/%s/output.%s", task.TaskNo, ext)
}
