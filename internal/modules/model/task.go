package model

import (
	"database/sql"
	"time"

	"github.com/jinzhu/copier"
	"gorm.io/datatypes"
)

// GenerationTask is one provider job. InternalKey is the object store key of
// the mirrored artifact; its URL is resolved on read.
type GenerationTask struct {
	Id              int                         `json:"id" gorm:"primaryKey"`
	TaskNo          string                      `json:"task_no" gorm:"column:task_no;type:varchar(64);uniqueIndex"`
	Kind            string                      `json:"kind" gorm:"column:kind;type:varchar(10)"`
	Prompt          string                      `json:"prompt" gorm:"column:prompt;type:varchar(5000)"`
	ReferenceImages datatypes.JSONSlice[string] `json:"reference_images" gorm:"column:reference_images"`
	Resolution      string                      `json:"resolution" gorm:"column:resolution;type:varchar(20)"`
	AspectRatio     string                      `json:"aspect_ratio" gorm:"column:aspect_ratio;type:varchar(10)"`
	Duration        int                         `json:"duration" gorm:"column:duration;type:int"`
	Status          string                      `json:"status" gorm:"column:status;type:varchar(20);index"`
	Supplier        string                      `json:"supplier" gorm:"column:supplier;type:varchar(20)"`
	ProviderTaskId  sql.NullString              `json:"provider_task_id" gorm:"column:provider_task_id;type:varchar(100)"`
	ExternalURL     string                      `json:"external_url" gorm:"column:external_url;type:varchar(1000)"`
	InternalKey     sql.NullString              `json:"internal_key" gorm:"column:internal_key;type:varchar(500)"`
	FailedReason    string                      `json:"failed_reason" gorm:"column:failed_reason;type:varchar(1000)"`
	ReconcileCount  int                         `json:"reconcile_count" gorm:"column:reconcile_count;type:int;default:0"`
	Metadata        datatypes.JSON              `json:"metadata" gorm:"column:metadata"`
	CreatedAt       time.Time                   `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                   `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (*GenerationTask) TableName() string {
	return "generation_task"
}

func (t *GenerationTask) DeepCopy() *GenerationTask {
	newT := GenerationTask{}
	copier.CopyWithOption(&newT, t, copier.Option{
		DeepCopy: true,
	})
	return &newT
}

func (t *GenerationTask) Terminal() bool {
	return TaskStatus(t.Status).Terminal()
}

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

func (t TaskStatus) String() string {
	return string(t)
}

func (t TaskStatus) Terminal() bool {
	return t == TaskStatusCompleted || t == TaskStatusFailed
}

// CanTransition reports whether a row in status from may move to status to.
// Only pending rows move, and only forward.
func CanTransition(from, to TaskStatus) bool {
	return from == TaskStatusPending && to.Terminal()
}

type SupplierInvokeHistory struct {
	Id             int       `json:"id" gorm:"primaryKey"`
	ProviderTaskId string    `json:"provider_task_id" gorm:"column:provider_task_id;type:varchar(100);index"`
	SupplierName   string    `json:"supplier_name" gorm:"column:supplier_name;type:varchar(20)"`
	ModelName      string    `json:"model_name" gorm:"column:model_name;type:varchar(50)"`
	Action         string    `json:"action" gorm:"column:action;type:varchar(20)"`
	StatusCode     int       `json:"status_code" gorm:"column:status_code;type:int"`
	FailedRespBody string    `json:"failed_resp_body" gorm:"column:failed_resp_body;type:varchar(2000)"`
	DurationMs     int64     `json:"duration_ms" gorm:"column:duration_ms;type:int"`
	CreatedAt      time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (SupplierInvokeHistory) TableName() string {
	return "supplier_invoke_history"
}
