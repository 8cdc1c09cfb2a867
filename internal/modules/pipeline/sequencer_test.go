package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/reusedev/shot-hub/config"
	"github.com/reusedev/shot-hub/internal/consts"
	"github.com/reusedev/shot-hub/internal/modules/ai/chat"
	"github.com/reusedev/shot-hub/internal/modules/ai/media"
	"github.com/reusedev/shot-hub/internal/modules/model"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

const (
	analysisJSON = `{"product_name":"ceramic mug","category":"kitchen","colors":["red"],"materials":["ceramic"],"key_features":["handle"],"background":"white"}`
	scriptJSON   = `{"title":"Morning mug","hook":"Start warm","beats":["steam","handle","logo"],"call_to_action":"Shop now"}`
)

func compositionJSON(n int) string {
	shots := make([]string, n)
	for i := range shots {
		shots[i] = fmt.Sprintf(`{"framing":"close-up","movement":"pan","focus":"detail %d","duration":5}`, i+1)
	}
	return `{"background":"white","style":"clean","shots":[` + strings.Join(shots, ",") + `]}`
}

type fakeChat struct {
	verifyErr   error
	composition string
	fail        map[string]error
	panicOn     string
}

func (f *fakeChat) Verify() error { return f.verifyErr }

func (f *fakeChat) CompleteJSON(_ context.Context, messages []chat.Message, v any) error {
	system := messages[0].Content[0].Text
	var stage, body string
	switch {
	case strings.Contains(system, "analyse product photos"):
		stage, body = "analysis", analysisJSON
	case strings.Contains(system, "write scripts"):
		stage, body = "script", scriptJSON
	default:
		stage, body = "composition", f.composition
	}
	if f.panicOn == stage {
		panic("boom in " + stage)
	}
	if err := f.fail[stage]; err != nil {
		return err
	}
	return jsoniter.UnmarshalFromString(body, v)
}

type fakeMedia struct {
	mu        sync.Mutex
	submitted []string
	timeout   map[string]bool
	rejected  map[string]bool
}

func (f *fakeMedia) Verify(...consts.MediaKind) error { return nil }

func (f *fakeMedia) Submit(_ context.Context, req media.SubmitRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req.Prompt)
	var id string
	for i := 1; i <= 10; i++ {
		if strings.Contains(req.Prompt, fmt.Sprintf("detail %d,", i)) {
			id = fmt.Sprintf("task-%d", i)
		}
	}
	if f.rejected[id] {
		return "", &media.ProviderRejectedError{StatusCode: 400, Body: "bad"}
	}
	return id, nil
}

func (f *fakeMedia) Poll(_ context.Context, taskID string, _ consts.MediaKind, _ media.PollOptions) (string, error) {
	if f.timeout[taskID] {
		return "", fmt.Errorf("%w: task %s after 3 attempts", media.ErrProviderTimeout, taskID)
	}
	return "https://provider.example.com/" + taskID + ".mp4", nil
}

type fakeMirror struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeMirror) record(p string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, p)
	return "https://store.example.com/" + p
}

func (f *fakeMirror) Mirror(_ context.Context, _, destPath, _ string) (string, bool) {
	return f.record(destPath), true
}

func (f *fakeMirror) Persist(_ context.Context, destPath string, _ []byte, _ string) (string, bool) {
	return f.record(destPath), true
}

func (f *fakeMirror) PersistJSON(_ context.Context, destPath string, _ any) (string, bool) {
	return f.record(destPath), true
}

type memTaskStore struct {
	mu       sync.Mutex
	tasks    map[string]*model.GenerationTask
	released map[string]bool
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{tasks: map[string]*model.GenerationTask{}, released: map[string]bool{}}
}

func (s *memTaskStore) Create(_ context.Context, task *model.GenerationTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.TaskNo] = task.DeepCopy()
	return nil
}

func (s *memTaskStore) AttachProviderTask(_ context.Context, taskNo, providerTaskId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[taskNo].ProviderTaskId.String = providerTaskId
	s.tasks[taskNo].ProviderTaskId.Valid = true
	return nil
}

func (s *memTaskStore) Complete(_ context.Context, taskNo, externalURL, internalKey string, metadata datatypes.JSON) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tasks[taskNo]
	if !model.CanTransition(model.TaskStatus(t.Status), model.TaskStatusCompleted) {
		return false, nil
	}
	t.Status = model.TaskStatusCompleted.String()
	t.ExternalURL = externalURL
	t.InternalKey.String, t.InternalKey.Valid = internalKey, internalKey != ""
	t.Metadata = metadata
	return true, nil
}

func (s *memTaskStore) Fail(_ context.Context, taskNo, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tasks[taskNo]
	if !model.CanTransition(model.TaskStatus(t.Status), model.TaskStatusFailed) {
		return false, nil
	}
	t.Status = model.TaskStatusFailed.String()
	t.FailedReason = reason
	return true, nil
}

func (s *memTaskStore) Release(taskNo string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released[taskNo] = true
}

func (s *memTaskStore) byShotPrompt(detail string) *model.GenerationTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if strings.Contains(t.Prompt, detail+",") {
			return t
		}
	}
	return nil
}

func inputImage(t *testing.T) string {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func pipelineConfig() config.Pipeline {
	return config.Pipeline{MaxShots: 3, MaxConcurrentShots: 3, ShotDuration: 5, Resolution: "720p", AspectRatio: "9:16"}
}

func collect(ch <-chan Event) []Event {
	var events []Event
	for e := range ch {
		events = append(events, e)
	}
	return events
}

func fixedRunID() Option {
	return WithRunID(func() string { return "run-1" })
}

func TestRunPartialShotFailure(t *testing.T) {
	mediaClient := &fakeMedia{timeout: map[string]bool{"task-2": true}}
	mirror := &fakeMirror{}
	store := newMemTaskStore()
	s := NewSequencer(&fakeChat{composition: compositionJSON(3)}, mediaClient, mirror, pipelineConfig(),
		media.PollOptions{MaxAttempts: 3}, fixedRunID(), WithTaskStore(store, "ark"))

	events := collect(s.Run(context.Background(), RunRequest{ImageBase64: inputImage(t)}))
	require.NotEmpty(t, events)

	done := map[int]bool{}
	failed := map[int]bool{}
	for _, e := range events {
		require.Equal(t, "run-1", e.RunID)
		switch e.Type {
		case EventShotDone:
			done[e.Shot] = true
		case EventShotError:
			failed[e.Shot] = true
			require.Contains(t, e.Error, "provider timeout")
		}
	}
	require.Equal(t, map[int]bool{1: true, 3: true}, done)
	require.Equal(t, map[int]bool{2: true}, failed)

	last := events[len(events)-1]
	require.Equal(t, EventComplete, last.Type)
	result := last.Data.(RunResult)
	require.Equal(t, 2, result.Succeeded)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, "https://store.example.com/pipelines/run-1/shot_1.mp4", result.Shots[0].URL())
	require.Equal(t, ShotError, result.Shots[1].Status)

	completed := store.byShotPrompt("detail 1")
	require.Equal(t, model.TaskStatusCompleted.String(), completed.Status)
	require.Equal(t, "pipelines/run-1/shot_1.mp4", completed.InternalKey.String)
	require.Equal(t, "run-1", jsoniter.Get(completed.Metadata, "run_id").ToString())
	require.Equal(t, "close-up", jsoniter.Get(completed.Metadata, "framing").ToString())
	require.True(t, jsoniter.Get(completed.Metadata, "mirrored").ToBool())
	require.Equal(t, "pipelines/run-1/shot_1.mp4", result.Shots[0].InternalKey)
	timedOut := store.byShotPrompt("detail 2")
	require.Equal(t, model.TaskStatusPending.String(), timedOut.Status)
	require.Equal(t, "task-2", timedOut.ProviderTaskId.String)
	require.Equal(t, datatypes.JSONSlice[string]{"https://store.example.com/pipelines/run-1/input.png"}, timedOut.ReferenceImages)
	require.Len(t, store.released, 3)
	for taskNo := range store.tasks {
		require.True(t, store.released[taskNo], taskNo)
	}

	require.Contains(t, mirror.paths, "pipelines/run-1/input.png")
	require.Contains(t, mirror.paths, "pipelines/run-1/analysis.json")
	require.Contains(t, mirror.paths, "pipelines/run-1/shot_3.mp4")
	require.NotContains(t, mirror.paths, "pipelines/run-1/shot_2.mp4")
}

func TestRunEventOrdering(t *testing.T) {
	s := NewSequencer(&fakeChat{composition: compositionJSON(3)}, &fakeMedia{}, &fakeMirror{}, pipelineConfig(),
		media.PollOptions{MaxAttempts: 3})
	events := collect(s.Run(context.Background(), RunRequest{ImageBase64: inputImage(t)}))

	lastAnalysis, firstComposition := -1, -1
	for i, e := range events {
		if e.Stage == StageAnalysis {
			lastAnalysis = i
		}
		if e.Stage == StageComposition && firstComposition == -1 {
			firstComposition = i
		}
	}
	require.GreaterOrEqual(t, lastAnalysis, 0)
	require.Greater(t, firstComposition, lastAnalysis)

	perShot := map[int][]string{}
	for _, e := range events {
		if e.Shot != 0 {
			perShot[e.Shot] = append(perShot[e.Shot], e.Status)
		}
	}
	require.Len(t, perShot, 3)
	for shot, statuses := range perShot {
		require.Equal(t, []string{ShotSubmitting, ShotPolling, ShotDone}, statuses, "shot %d", shot)
	}

	stages := []Stage{}
	for _, e := range events {
		if e.Type == EventStage && e.Status == StageStarted {
			stages = append(stages, e.Stage)
		}
	}
	require.Equal(t, []Stage{StageAnalysis, StageScript, StageComposition, StageShotGeneration}, stages)
	require.Equal(t, EventComplete, events[len(events)-1].Type)
}

func TestRunFatalConfiguration(t *testing.T) {
	s := NewSequencer(&fakeChat{verifyErr: chat.ErrMissingCredential}, &fakeMedia{}, nil, pipelineConfig(), media.PollOptions{})
	require.True(t, errors.Is(s.Preflight(), ErrFatalConfiguration))

	events := collect(s.Run(context.Background(), RunRequest{ImageBase64: inputImage(t)}))
	require.Len(t, events, 1)
	require.Equal(t, EventFatalError, events[0].Type)
	require.Contains(t, events[0].Error, "fatal configuration")
	require.Contains(t, events[0].Error, "chat credential missing")
}

func TestRunInvalidImage(t *testing.T) {
	s := NewSequencer(&fakeChat{composition: compositionJSON(1)}, &fakeMedia{}, nil, pipelineConfig(), media.PollOptions{})
	events := collect(s.Run(context.Background(), RunRequest{ImageBase64: "not-an-image"}))
	require.Len(t, events, 1)
	require.Equal(t, EventFatalError, events[0].Type)
	require.Contains(t, events[0].Error, "invalid input image")
}

func TestRunMalformedComposition(t *testing.T) {
	mediaClient := &fakeMedia{}
	s := NewSequencer(&fakeChat{composition: `{"background":"white","shots":[]}`}, mediaClient, nil, pipelineConfig(),
		media.PollOptions{})
	events := collect(s.Run(context.Background(), RunRequest{ImageBase64: inputImage(t)}))
	last := events[len(events)-1]
	require.Equal(t, EventFatalError, last.Type)
	require.Equal(t, StageComposition, last.Stage)
	require.Contains(t, last.Error, "no shots")
	require.Empty(t, mediaClient.submitted)
	for _, e := range events {
		require.Zero(t, e.Shot)
	}
}

func TestRunStageError(t *testing.T) {
	s := NewSequencer(&fakeChat{fail: map[string]error{"script": errors.New("upstream 502")}}, &fakeMedia{}, nil,
		pipelineConfig(), media.PollOptions{})
	events := collect(s.Run(context.Background(), RunRequest{ImageBase64: inputImage(t)}))
	last := events[len(events)-1]
	require.Equal(t, EventFatalError, last.Type)
	require.Equal(t, StageScript, last.Stage)
	require.Contains(t, last.Error, "upstream 502")
}

func TestRunCapsShots(t *testing.T) {
	mediaClient := &fakeMedia{}
	cfg := pipelineConfig()
	cfg.MaxShots = 2
	s := NewSequencer(&fakeChat{composition: compositionJSON(5)}, mediaClient, nil, cfg, media.PollOptions{})
	events := collect(s.Run(context.Background(), RunRequest{ImageBase64: inputImage(t)}))
	require.Equal(t, EventComplete, events[len(events)-1].Type)
	require.Len(t, mediaClient.submitted, 2)
	require.Len(t, events[len(events)-1].Data.(RunResult).Shots, 2)
}

func TestRunRejectedShotIsFailed(t *testing.T) {
	store := newMemTaskStore()
	s := NewSequencer(&fakeChat{composition: compositionJSON(2)}, &fakeMedia{rejected: map[string]bool{"task-1": true}}, nil,
		pipelineConfig(), media.PollOptions{}, WithTaskStore(store, "ark"))
	events := collect(s.Run(context.Background(), RunRequest{ImageBase64: inputImage(t)}))
	require.Equal(t, EventComplete, events[len(events)-1].Type)
	rejected := store.byShotPrompt("detail 1")
	require.Equal(t, model.TaskStatusFailed.String(), rejected.Status)
	require.Contains(t, rejected.FailedReason, "status code: 400")
}

func TestRunPanicBecomesFatal(t *testing.T) {
	s := NewSequencer(&fakeChat{panicOn: "script"}, &fakeMedia{}, nil, pipelineConfig(), media.PollOptions{})
	events := collect(s.Run(context.Background(), RunRequest{ImageBase64: inputImage(t)}))
	last := events[len(events)-1]
	require.Equal(t, EventFatalError, last.Type)
	require.Equal(t, StageScript, last.Stage)
	require.Contains(t, last.Error, "boom in script")
}
