package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/reusedev/shot-hub/config"
	"github.com/reusedev/shot-hub/internal/components/database"
	"github.com/reusedev/shot-hub/internal/modules/ai/chat"
	"github.com/reusedev/shot-hub/internal/modules/ai/media"
	"github.com/reusedev/shot-hub/internal/modules/dao"
	"github.com/reusedev/shot-hub/internal/modules/logs"
	"github.com/reusedev/shot-hub/internal/modules/mirror"
	"github.com/reusedev/shot-hub/internal/modules/model"
	"github.com/reusedev/shot-hub/internal/modules/notify"
	"github.com/reusedev/shot-hub/internal/modules/pipeline"
	"github.com/reusedev/shot-hub/internal/modules/queue"
	"github.com/reusedev/shot-hub/internal/modules/storage"
	"github.com/reusedev/shot-hub/internal/modules/task"
	httpserver "github.com/reusedev/shot-hub/internal/service/http"
	"github.com/reusedev/shot-hub/internal/service/http/handler"
	"github.com/reusedev/shot-hub/tools"
)

var (
	httpPort   string
	configPath string
	queueSize  int
)

func init() {
	flag.StringVar(&httpPort, "http-port", ":8080", "listen http port")
	flag.StringVar(&configPath, "config", "config.yml", "config file path")
	flag.IntVar(&queueSize, "queue-size", 1024, "task queue capacity")
}

func main() {
	flag.Parse()
	config.Init(configPath)
	cfg := config.GConfig
	logs.InitLogger(cfg.Log)

	database.InitDatabase(cfg.Database)
	if err := database.DB.AutoMigrate(&model.GenerationTask{}, &model.SupplierInvokeHistory{}); err != nil {
		panic(err)
	}

	store := tools.PanicOnError(storage.New(cfg.Storage))
	artifactMirror := mirror.New(store, nil)
	mediaClient := tools.PanicOnError(media.NewClient(cfg.Provider,
		media.WithRecorder(dao.NewInvokeHistoryDao(database.DB))))
	chatClient := chat.NewClient(cfg.Chat, nil)
	taskDao := dao.NewTaskDao(database.DB)
	poll := media.PollOptions{
		Interval:    cfg.Provider.PollInterval,
		MaxAttempts: cfg.Provider.MaxAttempts,
		MaxWait:     cfg.Provider.MaxWait,
	}

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	taskQueue := queue.NewTaskQueue(queueSize)
	taskQueue.Start(ctx, wg)

	taskService := task.NewService(taskDao, mediaClient, artifactMirror, taskQueue, poll, mediaClient.Supplier().String())
	taskService.Attach(task.AuditLogger{})
	var notifier *notify.KafkaNotifier
	if cfg.Kafka.Enabled {
		notifier = notify.NewKafkaNotifier(cfg.Kafka, store)
		taskService.Attach(notifier)
	}
	task.NewReconciler(taskService, cfg.Reconcile).Start(ctx, wg)

	sequencer := pipeline.NewSequencer(chatClient, mediaClient, artifactMirror, cfg.Pipeline, poll,
		pipeline.WithTaskStore(taskService.Shots(), mediaClient.Supplier().String()))
	if err := sequencer.Preflight(); err != nil {
		// runs report this as fatal_error; the task API still works
		logs.Logger.Warn().Err(err).Msg("pipeline preflight")
	}

	handler.Init(sequencer, taskService, store, handler.StreamOptions{
		Heartbeat:   cfg.Pipeline.Heartbeat,
		MaxDuration: cfg.Pipeline.MaxDuration,
	})
	var opts []httpserver.Option
	if cfg.Storage.Supplier == "local" {
		if u, err := url.Parse(cfg.Storage.Local.BaseURL); err == nil && u.Path != "" && u.Path != "/" {
			opts = append(opts, httpserver.WithStaticFiles(u.Path, cfg.Storage.Local.BasePath))
		}
	}
	server := httpserver.NewServer(httpPort, opts...)

	osSignal := make(chan os.Signal, 1)
	signal.Notify(osSignal, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-osSignal
		logs.Logger.Info().Msg("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logs.Logger.Err(err).Msg("http shutdown")
		}
	}()

	logs.Logger.Info().Str("addr", httpPort).Msg("http server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic(err)
	}
	cancel()
	wg.Wait()
	if notifier != nil {
		if err := notifier.Close(); err != nil {
			logs.Logger.Err(err).Msg("close kafka notifier")
		}
	}
}
