package dao

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/reusedev/shot-hub/internal/modules/model"
	"github.com/reusedev/shot-hub/tools"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrTaskNotFound = errors.New("task not found")

const (
	maxReasonBytes = 1000
	maxURLBytes    = 1000
)

type TaskDao struct {
	db *gorm.DB
}

func NewTaskDao(db *gorm.DB) *TaskDao {
	return &TaskDao{db: db}
}

func (d *TaskDao) Create(ctx context.Context, task *model.GenerationTask) error {
	return d.db.WithContext(ctx).Create(task).Error
}

func (d *TaskDao) ByTaskNo(ctx context.Context, taskNo string) (model.GenerationTask, error) {
	var task model.GenerationTask
	err := d.db.WithContext(ctx).Model(&model.GenerationTask{}).Where("task_no = ?", taskNo).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.GenerationTask{}, ErrTaskNotFound
	}
	if err != nil {
		return model.GenerationTask{}, err
	}
	return task, nil
}

// AttachProviderTask records the provider id once; a second attach is ignored.
func (d *TaskDao) AttachProviderTask(ctx context.Context, taskNo, providerTaskId string) error {
	return d.attachQuery(ctx, taskNo, providerTaskId).Error
}

func (d *TaskDao) attachQuery(ctx context.Context, taskNo, providerTaskId string) *gorm.DB {
	return d.db.WithContext(ctx).Model(&model.GenerationTask{}).
		Where("task_no = ? AND status = ? AND provider_task_id IS NULL", taskNo, model.TaskStatusPending.String()).
		Update("provider_task_id", sql.NullString{String: providerTaskId, Valid: true})
}

// Complete moves a pending task to completed. It reports false when the row
// was already terminal, leaving it untouched.
func (d *TaskDao) Complete(ctx context.Context, taskNo, externalURL, internalKey string, metadata datatypes.JSON) (bool, error) {
	updates := map[string]interface{}{
		"status":       model.TaskStatusCompleted.String(),
		"external_url": tools.TruncateUTF8(externalURL, maxURLBytes),
		"internal_key": sql.NullString{String: internalKey, Valid: internalKey != ""},
	}
	if len(metadata) != 0 {
		updates["metadata"] = metadata
	}
	ret := d.transitionQuery(ctx, taskNo, updates)
	return ret.RowsAffected == 1, ret.Error
}

func (d *TaskDao) Fail(ctx context.Context, taskNo, reason string) (bool, error) {
	ret := d.transitionQuery(ctx, taskNo, failUpdates(reason))
	return ret.RowsAffected == 1, ret.Error
}

func failUpdates(reason string) map[string]interface{} {
	return map[string]interface{}{
		"status":        model.TaskStatusFailed.String(),
		"failed_reason": tools.TruncateUTF8(reason, maxReasonBytes),
	}
}

func (d *TaskDao) transitionQuery(ctx context.Context, taskNo string, updates map[string]interface{}) *gorm.DB {
	return d.db.WithContext(ctx).Model(&model.GenerationTask{}).
		Where("task_no = ? AND status = ?", taskNo, model.TaskStatusPending.String()).
		Updates(updates)
}

func (d *TaskDao) IncrReconcileCount(ctx context.Context, taskNo string) error {
	return d.db.WithContext(ctx).Model(&model.GenerationTask{}).
		Where("task_no = ? AND status = ?", taskNo, model.TaskStatusPending.String()).
		Update("reconcile_count", gorm.Expr("reconcile_count + 1")).Error
}

// ListReconcilable returns pending tasks the provider accepted before createdBefore.
func (d *TaskDao) ListReconcilable(ctx context.Context, createdBefore time.Time, limit int) ([]model.GenerationTask, error) {
	var tasks []model.GenerationTask
	err := d.db.WithContext(ctx).Model(&model.GenerationTask{}).
		Where("status = ? AND provider_task_id IS NOT NULL AND created_at < ?", model.TaskStatusPending.String(), createdBefore).
		Order("id").Limit(limit).Find(&tasks).Error
	return tasks, err
}

// ListUnsubmitted returns pending tasks that never got a provider id.
func (d *TaskDao) ListUnsubmitted(ctx context.Context, createdBefore time.Time) ([]model.GenerationTask, error) {
	var tasks []model.GenerationTask
	err := d.db.WithContext(ctx).Model(&model.GenerationTask{}).
		Where("status = ? AND provider_task_id IS NULL AND created_at < ?", model.TaskStatusPending.String(), createdBefore).
		Order("id").Find(&tasks).Error
	return tasks, err
}
