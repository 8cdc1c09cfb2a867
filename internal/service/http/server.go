package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/reusedev/shot-hub/internal/service/http/handler"
	"github.com/reusedev/shot-hub/internal/service/http/middleware"
)

type Option func(e *gin.Engine)

// WithStaticFiles serves a local object store directory under urlPath.
func WithStaticFiles(urlPath, dir string) Option {
	return func(e *gin.Engine) {
		e.Static(urlPath, dir)
	}
}

func NewServer(addr string, opts ...Option) *http.Server {
	return &http.Server{
		Addr:    addr,
		Handler: NewRouter(opts...),
	}
}

func NewRouter(opts ...Option) *gin.Engine {
	e := gin.New()
	initRouter(e)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func initRouter(e *gin.Engine) {
	e.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger())
	e.GET("/healthz", handler.Health)
	v1 := e.Group("/v1")
	pipeline := v1.Group("/pipeline")
	{
		pipeline.POST("/stream", handler.PipelineStream)
	}
	tasks := v1.Group("/tasks")
	{
		tasks.POST("", handler.CreateTask)
		tasks.GET("", handler.QueryTask)
	}
}
