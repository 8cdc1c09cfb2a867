package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"github.com/reusedev/shot-hub/internal/modules/logs"
	"github.com/reusedev/shot-hub/internal/modules/pipeline"
	"github.com/reusedev/shot-hub/internal/service/http/handler/request"
	"github.com/reusedev/shot-hub/internal/service/http/handler/response"
)

var errStreamUnterminated = errors.New("event stream ended without a terminal event")

// PipelineStream runs the product video pipeline and streams its events as
// server-sent events. The run outlives the client connection up to
// streamOpts.MaxDuration.
func PipelineStream(c *gin.Context) {
	form := request.PipelineStream{}
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, response.ParamErrorWithMessage("image_base64 is required"))
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, response.InternalError)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), streamOpts.MaxDuration)
	events := runner.Run(ctx, pipeline.RunRequest{ImageBase64: form.ImageBase64})

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(streamOpts.Heartbeat)
	defer heartbeat.Stop()

	var (
		seq      int
		runID    string
		terminal bool
	)
	for {
		select {
		case <-c.Request.Context().Done():
			logs.Logger.Info().Str("run_id", runID).Msg("stream client gone, run continues")
			go drain(events, cancel)
			return
		case evt, ok := <-events:
			if !ok {
				if !terminal {
					seq++
					writeEvent(c, seq, pipeline.FatalEvent(runID, "", errStreamUnterminated))
				}
				writeDone(c)
				flusher.Flush()
				cancel()
				return
			}
			if runID == "" {
				runID = evt.RunID
			}
			terminal = terminal || evt.Type.Terminal()
			seq++
			writeEvent(c, seq, evt)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(c.Writer, ": ping %d\n\n", time.Now().Unix())
			flusher.Flush()
		}
	}
}

func writeEvent(c *gin.Context, seq int, evt pipeline.Event) {
	payload, err := jsoniter.MarshalToString(evt)
	if err != nil {
		logs.Logger.Err(err).Str("run_id", evt.RunID).Msg("encode stream event")
		payload, _ = jsoniter.MarshalToString(pipeline.FatalEvent(evt.RunID, evt.Stage, err))
	}
	c.Render(-1, sse.Event{
		Id:    strconv.Itoa(seq),
		Event: evt.Type.String(),
		Data:  payload,
	})
}

func writeDone(c *gin.Context) {
	c.Render(-1, sse.Event{Event: "done", Data: "[DONE]"})
}

// drain consumes a detached run so it is never blocked on an unread channel.
func drain(events <-chan pipeline.Event, cancel context.CancelFunc) {
	defer cancel()
	for evt := range events {
		if evt.Type.Terminal() {
			logs.Logger.Info().Str("run_id", evt.RunID).Str("type", evt.Type.String()).Str("error", evt.Error).
				Msg("detached run finished")
		}
	}
}
