package task

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/reusedev/shot-hub/config"
	"github.com/reusedev/shot-hub/internal/modules/ai/chat"
	"github.com/reusedev/shot-hub/internal/modules/ai/media"
	"github.com/reusedev/shot-hub/internal/modules/model"
	"github.com/reusedev/shot-hub/internal/modules/pipeline"
	"github.com/stretchr/testify/require"
)

type oneShotChat struct{}

func (oneShotChat) Verify() error { return nil }

func (oneShotChat) CompleteJSON(_ context.Context, _ []chat.Message, v any) error {
	var body string
	switch v.(type) {
	case *pipeline.ProductAnalysis:
		body = `{"product_name":"ceramic mug","category":"kitchen","colors":["red"],"materials":["ceramic"],"key_features":["handle"],"background":"white"}`
	case *pipeline.Script:
		body = `{"title":"Morning mug","hook":"Start warm","beats":["steam"],"call_to_action":"Shop now"}`
	default:
		body = `{"background":"white","style":"clean","shots":[{"framing":"close-up","movement":"pan","focus":"handle","duration":5}]}`
	}
	return jsoniter.UnmarshalFromString(body, v)
}

func productImage(t *testing.T) string {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func newShotSequencer(svc *Service, m *fakeMedia, mirror *fakeMirror) *pipeline.Sequencer {
	cfg := config.Pipeline{MaxShots: 1, MaxConcurrentShots: 1, ShotDuration: 5, Resolution: "720p", AspectRatio: "9:16"}
	return pipeline.NewSequencer(oneShotChat{}, m, mirror, cfg, media.PollOptions{MaxAttempts: 1},
		pipeline.WithRunID(func() string { return "run-1" }), pipeline.WithTaskStore(svc.Shots(), "ark"))
}

func drainRun(events <-chan pipeline.Event) <-chan []pipeline.Event {
	done := make(chan []pipeline.Event, 1)
	go func() {
		var all []pipeline.Event
		for e := range events {
			all = append(all, e)
		}
		done <- all
	}()
	return done
}

func (s *memStore) only(t *testing.T) model.GenerationTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.tasks, 1)
	for _, task := range s.tasks {
		return *task
	}
	return model.GenerationTask{}
}

func (s *memStore) backdate(taskNo string, age time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[taskNo].CreatedAt = time.Now().Add(-age)
}

func countPath(paths []string, p string) int {
	n := 0
	for _, got := range paths {
		if got == p {
			n++
		}
	}
	return n
}

func TestSweepSkipsShotStillPolledByRun(t *testing.T) {
	store := newMemStore()
	m := &fakeMedia{
		urls:    map[string]string{"prov-1": "https://provider.example.com/shot.mp4"},
		polling: make(chan string, 1),
		gate:    make(chan struct{}),
	}
	mirror := &fakeMirror{}
	svc, rec := newTestService(store, m, mirror)
	done := drainRun(newShotSequencer(svc, m, mirror).Run(context.Background(), pipeline.RunRequest{ImageBase64: productImage(t)}))

	require.Equal(t, "prov-1", <-m.polling)
	row := store.only(t)
	store.backdate(row.TaskNo, 3*time.Minute)

	r := NewReconciler(svc, config.Reconcile{MinAge: time.Minute, MaxAttempts: 2})
	require.NoError(t, r.Sweep(context.Background()))
	require.Len(t, m.polls, 1)
	require.Equal(t, model.TaskStatusPending.String(), store.only(t).Status)

	close(m.gate)
	events := <-done
	require.Equal(t, pipeline.EventComplete, events[len(events)-1].Type)

	got := store.only(t)
	require.Equal(t, model.TaskStatusCompleted.String(), got.Status)
	require.Equal(t, "pipelines/run-1/shot_1.mp4", got.InternalKey.String)
	require.Equal(t, 1, countPath(mirror.paths, "pipelines/run-1/shot_1.mp4"))
	require.Equal(t, []string{"task_submitted:pending", "task_completed:completed"}, rec.events)
	_, busy := svc.inflight.Load(got.TaskNo)
	require.False(t, busy)
}

func TestShotFailureNotifiesObservers(t *testing.T) {
	store := newMemStore()
	m := &fakeMedia{results: map[string]error{
		"prov-1": &media.ProviderTaskFailedError{TaskID: "prov-1", Reason: "content policy"},
	}}
	mirror := &fakeMirror{}
	svc, rec := newTestService(store, m, mirror)

	events := <-drainRun(newShotSequencer(svc, m, mirror).Run(context.Background(), pipeline.RunRequest{ImageBase64: productImage(t)}))
	require.Equal(t, pipeline.EventComplete, events[len(events)-1].Type)

	got := store.only(t)
	require.Equal(t, model.TaskStatusFailed.String(), got.Status)
	require.Equal(t, []string{"task_submitted:pending", "task_failed:failed"}, rec.events)
}

func TestSweepSettlesReleasedShot(t *testing.T) {
	store := newMemStore()
	m := &fakeMedia{}
	mirror := &fakeMirror{}
	svc, rec := newTestService(store, m, mirror)

	events := <-drainRun(newShotSequencer(svc, m, mirror).Run(context.Background(), pipeline.RunRequest{ImageBase64: productImage(t)}))
	require.Equal(t, pipeline.EventComplete, events[len(events)-1].Type)

	row := store.only(t)
	require.Equal(t, model.TaskStatusPending.String(), row.Status)
	_, busy := svc.inflight.Load(row.TaskNo)
	require.False(t, busy)

	m.mu.Lock()
	m.urls = map[string]string{"prov-1": "https://provider.example.com/late.mp4"}
	m.mu.Unlock()
	store.backdate(row.TaskNo, 3*time.Minute)
	r := NewReconciler(svc, config.Reconcile{MinAge: time.Minute, MaxAttempts: 2})
	require.NoError(t, r.Sweep(context.Background()))

	got := store.only(t)
	require.Equal(t, model.TaskStatusCompleted.String(), got.Status)
	require.Equal(t, "pipelines/run-1/shot_1.mp4", got.InternalKey.String)
	require.Equal(t, "run-1", jsoniter.Get(got.Metadata, "run_id").ToString())
	require.Equal(t, []string{"task_submitted:pending", "task_completed:completed"}, rec.events)
}
