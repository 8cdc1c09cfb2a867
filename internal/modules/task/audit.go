package task

import (
	"github.com/reusedev/shot-hub/internal/modules/logs"
	"github.com/reusedev/shot-hub/internal/modules/model"
)

// AuditLogger writes every task lifecycle event to the service log.
type AuditLogger struct{}

func (AuditLogger) Update(event string, data interface{}) {
	task, ok := data.(*model.GenerationTask)
	if !ok {
		return
	}
	logs.Logger.Info().
		Str("event", event).
		Str("task_no", task.TaskNo).
		Str("status", task.Status).
		Str("provider_task_id", task.ProviderTaskId.String).
		Str("internal_key", task.InternalKey.String).
		Str("failed_reason", task.FailedReason).
		Msg("task event")
}
