// Package pipeline runs the product video pipeline for one input image:
// analysis, script, composition, then concurrent shot generation, reporting
// progress as a stream of events.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/reusedev/shot-hub/config"
	"github.com/reusedev/shot-hub/internal/consts"
	"github.com/reusedev/shot-hub/internal/modules/ai/chat"
	"github.com/reusedev/shot-hub/internal/modules/ai/media"
	"github.com/reusedev/shot-hub/internal/modules/logs"
	"github.com/reusedev/shot-hub/internal/modules/model"
	"github.com/reusedev/shot-hub/tools"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
)

var ErrFatalConfiguration = errors.New("fatal configuration error")

type ChatClient interface {
	Verify() error
	CompleteJSON(ctx context.Context, messages []chat.Message, v any) error
}

type MediaClient interface {
	Verify(kinds ...consts.MediaKind) error
	Submit(ctx context.Context, req media.SubmitRequest) (string, error)
	Poll(ctx context.Context, taskID string, kind consts.MediaKind, opts media.PollOptions) (string, error)
}

type ArtifactMirror interface {
	Mirror(ctx context.Context, sourceURL, destPath, contentType string) (string, bool)
	Persist(ctx context.Context, destPath string, data []byte, contentType string) (string, bool)
	PersistJSON(ctx context.Context, destPath string, v any) (string, bool)
}

// TaskStore persists each shot as a generation task. Release is called once
// the run stops driving the row.
type TaskStore interface {
	Create(ctx context.Context, task *model.GenerationTask) error
	AttachProviderTask(ctx context.Context, taskNo, providerTaskId string) error
	Complete(ctx context.Context, taskNo, externalURL, internalKey string, metadata datatypes.JSON) (bool, error)
	Fail(ctx context.Context, taskNo, reason string) (bool, error)
	Release(taskNo string)
}

// ShotArtifactPath is the object key of a mirrored shot video.
func ShotArtifactPath(runID string, index int) string {
	return fmt.Sprintf("pipelines/%s/shot_%d.mp4", runID, index)
}

type Sequencer struct {
	chat     ChatClient
	media    MediaClient
	mirror   ArtifactMirror
	store    TaskStore
	supplier string
	cfg      config.Pipeline
	poll     media.PollOptions
	newRunID func() string
}

type Option func(s *Sequencer)

func WithTaskStore(store TaskStore, supplier string) Option {
	return func(s *Sequencer) {
		s.store = store
		s.supplier = supplier
	}
}

func WithRunID(newRunID func() string) Option {
	return func(s *Sequencer) {
		s.newRunID = newRunID
	}
}

func NewSequencer(chat ChatClient, media MediaClient, mirror ArtifactMirror, cfg config.Pipeline, poll media.PollOptions, opts ...Option) *Sequencer {
	s := &Sequencer{
		chat:     chat,
		media:    media,
		mirror:   mirror,
		cfg:      cfg,
		poll:     poll,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Preflight reports configuration that makes every run fail.
func (s *Sequencer) Preflight() error {
	var errs []error
	if s.chat == nil {
		errs = append(errs, errors.New("chat client is not configured"))
	} else if err := s.chat.Verify(); err != nil {
		errs = append(errs, err)
	}
	if s.media == nil {
		errs = append(errs, errors.New("media client is not configured"))
	} else if err := s.media.Verify(consts.KindVideo); err != nil {
		errs = append(errs, err)
	}
	if s.cfg.MaxShots < 1 {
		errs = append(errs, errors.New("pipeline.max_shots must be positive"))
	}
	if len(errs) != 0 {
		return fmt.Errorf("%w: %w", ErrFatalConfiguration, errors.Join(errs...))
	}
	return nil
}

// Run starts a pipeline run and returns its events. The channel is closed
// after the terminal complete or fatal_error event; the caller must drain it.
func (s *Sequencer) Run(ctx context.Context, req RunRequest) <-chan Event {
	out := make(chan Event)
	r := &run{Sequencer: s, id: s.newRunID(), out: out}
	go func() {
		defer close(out)
		defer func() {
			if p := recover(); p != nil {
				logs.Logger.Error().Str("run_id", r.id).Interface("panic", p).Str("stack", string(debug.Stack())).
					Msg("pipeline panic")
				r.fatal(r.currentStage(), fmt.Errorf("internal error: %v", p))
			}
		}()
		r.execute(ctx, req)
	}()
	return out
}

type run struct {
	*Sequencer
	id  string
	out chan<- Event

	mu         sync.Mutex
	stage      Stage
	terminated bool
	inputURL   string
}

func (r *run) currentStage() Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage
}

func (r *run) setStage(stage Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stage = stage
}

func (r *run) emit(e Event) {
	r.mu.Lock()
	if r.terminated {
		r.mu.Unlock()
		return
	}
	if e.Type.Terminal() {
		r.terminated = true
	}
	r.mu.Unlock()
	e.RunID = r.id
	if e.At.IsZero() {
		e.At = time.Now()
	}
	r.out <- e
}

func (r *run) fatal(stage Stage, err error) {
	logs.Logger.Error().Err(err).Str("run_id", r.id).Str("stage", stage.String()).Msg("pipeline aborted")
	r.emit(FatalEvent(r.id, stage, err))
}

func (r *run) execute(ctx context.Context, req RunRequest) {
	if err := r.Preflight(); err != nil {
		r.fatal("", err)
		return
	}
	image, err := tools.NormalizeReferenceImage(req.ImageBase64)
	if err != nil {
		r.fatal("", fmt.Errorf("invalid input image: %w", err))
		return
	}
	r.persistInput(ctx, image)
	logs.Logger.Info().Str("run_id", r.id).Msg("pipeline started")

	var analysis ProductAnalysis
	if !r.runStage(ctx, StageAnalysis, analysisMessages(image), &analysis, nil) {
		return
	}
	var script Script
	if !r.runStage(ctx, StageScript, scriptMessages(analysis), &script, nil) {
		return
	}
	var composition Composition
	capShots := func() {
		if len(composition.Shots) > r.cfg.MaxShots {
			composition.Shots = composition.Shots[:r.cfg.MaxShots]
		}
	}
	if !r.runStage(ctx, StageComposition, compositionMessages(analysis, script, r.cfg.MaxShots), &composition, capShots) {
		return
	}

	shots := r.generateShots(ctx, image, analysis, composition)
	result := RunResult{
		RunID:       r.id,
		Analysis:    analysis,
		Script:      script,
		Composition: composition,
		Shots:       shots,
	}
	for _, shot := range shots {
		if shot.Status == ShotDone {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}
	r.persistJSON(ctx, "result.json", result)
	logs.Logger.Info().Str("run_id", r.id).Int("succeeded", result.Succeeded).Int("failed", result.Failed).
		Msg("pipeline complete")
	r.emit(Event{Type: EventComplete, Data: result})
}

type verifier interface {
	Verify() error
}

func (r *run) runStage(ctx context.Context, stage Stage, messages []chat.Message, out verifier, post func()) bool {
	r.setStage(stage)
	r.emit(Event{Type: EventStage, Stage: stage, Status: StageStarted})
	start := time.Now()
	if err := r.chat.CompleteJSON(ctx, messages, out); err != nil {
		r.fatal(stage, fmt.Errorf("%s stage: %w", stage, err))
		return false
	}
	if err := out.Verify(); err != nil {
		r.fatal(stage, fmt.Errorf("%s stage: malformed output: %w", stage, err))
		return false
	}
	if post != nil {
		post()
	}
	artifact, _ := r.persistJSON(ctx, stage.String()+".json", out)
	logs.Logger.Info().Str("run_id", r.id).Str("stage", stage.String()).Dur("consume_ms", time.Since(start)).
		Msg("pipeline stage completed")
	r.emit(Event{Type: EventStage, Stage: stage, Status: StageCompleted, Data: StageOutput{Output: out, ArtifactURL: artifact}})
	return true
}

func (r *run) generateShots(ctx context.Context, image string, analysis ProductAnalysis, composition Composition) []ShotResult {
	r.setStage(StageShotGeneration)
	prompts := make([]ShotPrompt, len(composition.Shots))
	for i, shot := range composition.Shots {
		prompts[i] = BuildShotPrompt(i+1, shot, analysis, composition.Background, r.cfg.ShotDuration)
	}
	r.emit(Event{Type: EventStage, Stage: StageShotGeneration, Status: StageStarted, Data: prompts})

	limit := r.cfg.MaxConcurrentShots
	if limit <= 0 {
		limit = len(prompts)
	}
	results := make([]ShotResult, len(prompts))
	// a plain group: one shot failing must not cancel its siblings
	g := new(errgroup.Group)
	g.SetLimit(limit)
	for i, p := range prompts {
		g.Go(func() error {
			results[i] = r.generateShot(ctx, image, p)
			return nil
		})
	}
	_ = g.Wait()
	r.emit(Event{Type: EventStage, Stage: StageShotGeneration, Status: StageCompleted, Data: StageOutput{Output: results}})
	return results
}

func (r *run) generateShot(ctx context.Context, image string, p ShotPrompt) (ret ShotResult) {
	ret = ShotResult{Index: p.Index, Prompt: p.Prompt}
	defer func() {
		if rec := recover(); rec != nil {
			logs.Logger.Error().Str("run_id", r.id).Int("shot", p.Index).Interface("panic", rec).
				Str("stack", string(debug.Stack())).Msg("shot panic")
			ret.Status = ShotError
			ret.Error = fmt.Sprintf("internal error: %v", rec)
			r.emit(Event{Type: EventShotError, Stage: StageShotGeneration, Shot: p.Index, Status: ShotError, Error: ret.Error})
		}
	}()

	ret.TaskNo = r.createShotTask(ctx, p)
	defer r.releaseShotTask(ret.TaskNo)
	r.emit(Event{Type: EventShotStatus, Stage: StageShotGeneration, Shot: p.Index, Status: ShotSubmitting, Data: p})
	providerTaskID, err := r.media.Submit(ctx, media.SubmitRequest{
		Kind:            consts.KindVideo,
		Prompt:          p.Prompt,
		ReferenceImages: []string{image},
		Params: media.Params{
			Resolution:      r.cfg.Resolution,
			AspectRatio:     r.cfg.AspectRatio,
			DurationSeconds: p.Duration,
		},
	})
	if err != nil {
		return r.shotFailed(ctx, ret, err)
	}
	ret.ProviderTaskID = providerTaskID
	r.attachShotTask(ctx, ret.TaskNo, providerTaskID)
	r.emit(Event{Type: EventShotStatus, Stage: StageShotGeneration, Shot: p.Index, Status: ShotPolling,
		Data: map[string]string{"provider_task_id": providerTaskID}})

	assetURL, err := r.media.Poll(ctx, providerTaskID, consts.KindVideo, r.poll)
	if err != nil {
		return r.shotFailed(ctx, ret, err)
	}
	ret.ExternalURL = assetURL
	if r.mirror != nil {
		key := ShotArtifactPath(r.id, p.Index)
		if internal, ok := r.mirror.Mirror(ctx, assetURL, key, "video/mp4"); ok {
			ret.InternalURL = internal
			ret.InternalKey = key
		}
	}
	r.completeShotTask(ctx, p, ret)
	ret.Status = ShotDone
	logs.Logger.Info().Str("run_id", r.id).Int("shot", p.Index).Str("url", ret.URL()).Msg("shot done")
	r.emit(Event{Type: EventShotDone, Stage: StageShotGeneration, Shot: p.Index, Status: ShotDone, Data: ret})
	return ret
}

func (r *run) shotFailed(ctx context.Context, ret ShotResult, err error) ShotResult {
	ret.Status = ShotError
	ret.Error = err.Error()
	logs.Logger.Warn().Err(err).Str("run_id", r.id).Int("shot", ret.Index).Str("provider_task_id", ret.ProviderTaskID).
		Msg("shot failed")
	// timed out rows keep their provider id and stay pending for the reconcile sweep
	if !errors.Is(err, media.ErrProviderTimeout) && ctx.Err() == nil {
		r.failShotTask(ctx, ret.TaskNo, err.Error())
	}
	r.emit(Event{Type: EventShotError, Stage: StageShotGeneration, Shot: ret.Index, Status: ShotError, Error: ret.Error})
	return ret
}

func (r *run) createShotTask(ctx context.Context, p ShotPrompt) string {
	if r.store == nil {
		return ""
	}
	var refs datatypes.JSONSlice[string]
	if r.inputURL != "" {
		refs = datatypes.JSONSlice[string]{r.inputURL}
	}
	task := &model.GenerationTask{
		TaskNo:          uuid.NewString(),
		Kind:            consts.KindVideo.String(),
		Prompt:          p.Prompt,
		ReferenceImages: refs,
		Resolution:      r.cfg.Resolution,
		AspectRatio:     r.cfg.AspectRatio,
		Duration:        p.Duration,
		Status:          model.TaskStatusPending.String(),
		Supplier:        r.supplier,
		Metadata:        r.shotMetadata(p, nil),
	}
	if err := r.store.Create(ctx, task); err != nil {
		logs.Logger.Err(err).Str("run_id", r.id).Int("shot", p.Index).Msg("create shot task")
		return ""
	}
	return task.TaskNo
}

func (r *run) attachShotTask(ctx context.Context, taskNo, providerTaskID string) {
	if r.store == nil || taskNo == "" {
		return
	}
	if err := r.store.AttachProviderTask(ctx, taskNo, providerTaskID); err != nil {
		logs.Logger.Err(err).Str("run_id", r.id).Str("task_no", taskNo).Msg("attach provider task")
	}
}

func (r *run) shotMetadata(p ShotPrompt, extra map[string]any) datatypes.JSON {
	fields := map[string]any{"run_id": r.id, "shot": p.Index, "framing": p.Framing, "movement": p.Movement}
	for k, v := range extra {
		fields[k] = v
	}
	metadata, _ := jsoniter.Marshal(fields)
	return metadata
}

func (r *run) completeShotTask(ctx context.Context, p ShotPrompt, ret ShotResult) {
	if r.store == nil || ret.TaskNo == "" {
		return
	}
	metadata := r.shotMetadata(p, map[string]any{
		"supplier":         r.supplier,
		"provider_task_id": ret.ProviderTaskID,
		"mirrored":         ret.InternalKey != "",
	})
	if _, err := r.store.Complete(ctx, ret.TaskNo, ret.ExternalURL, ret.InternalKey, metadata); err != nil {
		logs.Logger.Err(err).Str("run_id", r.id).Str("task_no", ret.TaskNo).Msg("complete shot task")
	}
}

func (r *run) releaseShotTask(taskNo string) {
	if r.store == nil || taskNo == "" {
		return
	}
	r.store.Release(taskNo)
}

func (r *run) failShotTask(ctx context.Context, taskNo, reason string) {
	if r.store == nil || taskNo == "" {
		return
	}
	if _, err := r.store.Fail(ctx, taskNo, reason); err != nil {
		logs.Logger.Err(err).Str("run_id", r.id).Str("task_no", taskNo).Msg("fail shot task")
	}
}

func (r *run) persistInput(ctx context.Context, image string) {
	if r.mirror == nil || !strings.HasPrefix(image, "data:") {
		return
	}
	data, err := tools.DecodeBase64Image(image)
	if err != nil {
		return
	}
	ext := tools.DetectImageType(data).String()
	if u, ok := r.mirror.Persist(ctx, fmt.Sprintf("pipelines/%s/input.%s", r.id, ext), data, tools.DetectContentType(data)); ok {
		r.inputURL = u
	}
}

func (r *run) persistJSON(ctx context.Context, name string, v any) (string, bool) {
	if r.mirror == nil {
		return "", false
	}
	return r.mirror.PersistJSON(ctx, fmt.Sprintf("pipelines/%s/%s", r.id, name), v)
}
