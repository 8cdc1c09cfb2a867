package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/reusedev/shot-hub/internal/consts"
	"github.com/reusedev/shot-hub/internal/modules/ai/media"
	"github.com/reusedev/shot-hub/internal/modules/dao"
	"github.com/reusedev/shot-hub/internal/modules/logs"
	"github.com/reusedev/shot-hub/internal/modules/model"
	"github.com/reusedev/shot-hub/internal/modules/queue"
	"github.com/reusedev/shot-hub/internal/modules/task"
	"github.com/reusedev/shot-hub/internal/service/http/handler/request"
	"github.com/reusedev/shot-hub/internal/service/http/handler/response"
)

func CreateTask(c *gin.Context) {
	form := request.CreateTask{}
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, response.ParamErrorWithMessage(err.Error()))
		return
	}
	record, err := tasks.Create(c.Request.Context(), task.CreateRequest{
		Kind:            consts.MediaKind(form.Kind),
		Prompt:          form.Prompt,
		ReferenceImages: form.ReferenceImages,
		Params: media.Params{
			Resolution:      form.Resolution,
			AspectRatio:     form.AspectRatio,
			DurationSeconds: form.Duration,
		},
	})
	switch {
	case errors.Is(err, task.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, response.ParamErrorWithMessage(err.Error()))
		return
	case errors.Is(err, queue.ErrQueueFull), errors.Is(err, queue.ErrQueueClosed):
		c.JSON(http.StatusServiceUnavailable, response.BusyError)
		return
	case err != nil:
		logs.Logger.Err(err).Msg("create task")
		c.JSON(http.StatusInternalServerError, response.InternalError)
		return
	}
	writeTask(c, record)
}

func QueryTask(c *gin.Context) {
	form := request.QueryTask{}
	if err := c.ShouldBindQuery(&form); err != nil {
		c.JSON(http.StatusBadRequest, response.ParamError)
		return
	}
	record, err := tasks.Get(c.Request.Context(), form.TaskNo)
	if err == nil && !isOwner(c, record) {
		err = dao.ErrTaskNotFound
	}
	if errors.Is(err, dao.ErrTaskNotFound) {
		c.JSON(http.StatusNotFound, response.NotFoundError)
		return
	}
	if err != nil {
		logs.Logger.Err(err).Str("task_no", form.TaskNo).Msg("query task")
		c.JSON(http.StatusInternalServerError, response.InternalError)
		return
	}
	writeTask(c, record)
}

func writeTask(c *gin.Context, record model.GenerationTask) {
	resp, err := response.NewTask(c.Request.Context(), record, artifacts)
	if err != nil {
		logs.Logger.Err(err).Str("task_no", record.TaskNo).Msg("copy task response")
		c.JSON(http.StatusInternalServerError, response.InternalError)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithData(resp))
}
