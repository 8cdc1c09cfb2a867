package task

import (
	"context"

	"github.com/reusedev/shot-hub/internal/consts"
	"github.com/reusedev/shot-hub/internal/modules/logs"
	"github.com/reusedev/shot-hub/internal/modules/model"
	"gorm.io/datatypes"
)

// ShotStore records pipeline shot rows through the service. A row is in
// flight from Create until Release, so reconcile sweeps skip it, and its
// terminal transitions reach the service's observers.
type ShotStore struct {
	service *Service
}

func (s *Service) Shots() *ShotStore {
	return &ShotStore{service: s}
}

func (t *ShotStore) Create(ctx context.Context, task *model.GenerationTask) error {
	t.service.inflight.Store(task.TaskNo, struct{}{})
	if err := t.service.store.Create(ctx, task); err != nil {
		t.service.inflight.Delete(task.TaskNo)
		return err
	}
	return nil
}

func (t *ShotStore) AttachProviderTask(ctx context.Context, taskNo, providerTaskId string) error {
	if err := t.service.store.AttachProviderTask(ctx, taskNo, providerTaskId); err != nil {
		return err
	}
	t.notify(ctx, consts.EventTaskSubmitted, taskNo)
	return nil
}

func (t *ShotStore) Complete(ctx context.Context, taskNo, externalURL, internalKey string, metadata datatypes.JSON) (bool, error) {
	applied, err := t.service.store.Complete(ctx, taskNo, externalURL, internalKey, metadata)
	if err != nil || !applied {
		return applied, err
	}
	t.notify(ctx, consts.EventTaskCompleted, taskNo)
	return true, nil
}

func (t *ShotStore) Fail(ctx context.Context, taskNo, reason string) (bool, error) {
	applied, err := t.service.store.Fail(ctx, taskNo, reason)
	if err != nil || !applied {
		return applied, err
	}
	t.notify(ctx, consts.EventTaskFailed, taskNo)
	return true, nil
}

// Release hands the row over to reconciliation.
func (t *ShotStore) Release(taskNo string) {
	t.service.inflight.Delete(taskNo)
}

func (t *ShotStore) notify(ctx context.Context, event, taskNo string) {
	task, err := t.service.store.ByTaskNo(ctx, taskNo)
	if err != nil {
		logs.Logger.Err(err).Str("task_no", taskNo).Str("event", event).Msg("load shot task for notify")
		return
	}
	t.service.Notify(event, task)
}
