package dao

import (
	"github.com/reusedev/shot-hub/internal/modules/ai/media"
	"github.com/reusedev/shot-hub/internal/modules/logs"
	"github.com/reusedev/shot-hub/internal/modules/model"
	"gorm.io/gorm"
)

type InvokeHistoryDao struct {
	db *gorm.DB
}

func NewInvokeHistoryDao(db *gorm.DB) *InvokeHistoryDao {
	return &InvokeHistoryDao{db: db}
}

// RecordInvoke stores one provider round trip. Write errors are logged only.
func (d *InvokeHistoryDao) RecordInvoke(record media.InvokeRecord) {
	history := model.SupplierInvokeHistory{
		ProviderTaskId: record.ProviderTaskID,
		SupplierName:   record.Supplier,
		ModelName:      record.Model,
		Action:         record.Action,
		StatusCode:     record.StatusCode,
		FailedRespBody: record.FailedRespBody,
		DurationMs:     record.Duration.Milliseconds(),
	}
	if err := d.db.Create(&history).Error; err != nil {
		logs.Logger.Err(err).Str("provider_task_id", record.ProviderTaskID).Str("action", record.Action).
			Msg("record supplier invoke history")
	}
}
