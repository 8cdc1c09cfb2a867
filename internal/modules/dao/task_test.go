package dao

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func dryRunDao(t *testing.T) *TaskDao {
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "shot:hub@tcp(127.0.0.1:3306)/shot_hub?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)
	return NewTaskDao(db)
}

func TestTransitionOnlyFromPending(t *testing.T) {
	d := dryRunDao(t)
	ret := d.transitionQuery(context.Background(), "task-1", map[string]interface{}{"status": "completed"})
	require.NoError(t, ret.Error)
	stmt := ret.Statement.SQL.String()
	require.Contains(t, stmt, "UPDATE `generation_task` SET")
	require.Contains(t, stmt, "WHERE task_no = ? AND status = ?")
	vars := ret.Statement.Vars
	require.GreaterOrEqual(t, len(vars), 2)
	require.Equal(t, "task-1", vars[len(vars)-2])
	require.Equal(t, "pending", vars[len(vars)-1])
}

func TestAttachOnlyOnce(t *testing.T) {
	d := dryRunDao(t)
	ret := d.attachQuery(context.Background(), "task-1", "cgt-1")
	require.NoError(t, ret.Error)
	require.Contains(t, ret.Statement.SQL.String(), "provider_task_id IS NULL")
}

func TestFailReasonKeepsRunes(t *testing.T) {
	reason := strings.Repeat("a", 999) + "超时"
	updates := failUpdates(reason)
	got := updates["failed_reason"].(string)
	require.Equal(t, strings.Repeat("a", 999), got)
	require.True(t, utf8.ValidString(got))
	require.Equal(t, "failed", updates["status"])
}
