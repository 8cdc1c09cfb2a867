package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/reusedev/shot-hub/internal/modules/model"
	"github.com/reusedev/shot-hub/internal/modules/pipeline"
	"github.com/reusedev/shot-hub/internal/modules/task"
	"github.com/reusedev/shot-hub/internal/service/http/handler/response"
)

type PipelineRunner interface {
	Run(ctx context.Context, req pipeline.RunRequest) <-chan pipeline.Event
}

type TaskService interface {
	Create(ctx context.Context, req task.CreateRequest) (model.GenerationTask, error)
	Get(ctx context.Context, taskNo string) (model.GenerationTask, error)
}

type StreamOptions struct {
	Heartbeat   time.Duration
	MaxDuration time.Duration
}

// OwnerCheck reports whether the caller may read the task.
type OwnerCheck func(c *gin.Context, task model.GenerationTask) bool

var (
	runner     PipelineRunner
	tasks      TaskService
	artifacts  response.URLResolver
	streamOpts StreamOptions
	isOwner    OwnerCheck = func(*gin.Context, model.GenerationTask) bool { return true }
)

func SetOwnerCheck(check OwnerCheck) {
	isOwner = check
}

func Init(pipelineRunner PipelineRunner, taskService TaskService, urls response.URLResolver, opts StreamOptions) {
	runner = pipelineRunner
	tasks = taskService
	artifacts = urls
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 15 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 15 * time.Minute
	}
	streamOpts = opts
}
