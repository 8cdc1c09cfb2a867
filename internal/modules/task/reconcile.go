package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reusedev/shot-hub/config"
	"github.com/reusedev/shot-hub/internal/consts"
	"github.com/reusedev/shot-hub/internal/modules/ai/media"
	"github.com/reusedev/shot-hub/internal/modules/logs"
	"github.com/reusedev/shot-hub/internal/modules/model"
)

const (
	reasonInterrupted     = "interrupted before submit"
	reasonProviderTimeout = "provider timeout"
	reconcileBatch        = 100
)

// Reconciler re-polls pending tasks whose provider job outlived the poll
// budget, and fails rows that will never settle.
type Reconciler struct {
	service *Service
	cfg     config.Reconcile
	now     func() time.Time
	running atomic.Bool
}

func NewReconciler(service *Service, cfg config.Reconcile) *Reconciler {
	return &Reconciler{service: service, cfg: cfg, now: time.Now}
}

// Start sweeps once immediately, then every cfg.Interval until ctx is done.
func (r *Reconciler) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.trigger(ctx)
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.trigger(ctx)
			}
		}
	}()
}

func (r *Reconciler) trigger(ctx context.Context) {
	if err := r.service.queue.Push(&sweepJob{reconciler: r}); err != nil {
		logs.Logger.Warn().Err(err).Msg("enqueue reconcile sweep")
	}
}

type sweepJob struct {
	reconciler *Reconciler
}

func (j *sweepJob) Name() string {
	return "reconcile"
}

func (j *sweepJob) Execute(ctx context.Context) error {
	return j.reconciler.Sweep(ctx)
}

// Sweep runs one reconciliation pass. Overlapping sweeps are skipped.
func (r *Reconciler) Sweep(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return nil
	}
	defer r.running.Store(false)

	now := r.now()
	unsubmitted, err := r.service.store.ListUnsubmitted(ctx, now.Add(-r.cfg.MinAge))
	if err != nil {
		return err
	}
	for _, task := range unsubmitted {
		if r.busy(task.TaskNo) {
			continue
		}
		r.service.fail(ctx, task, reasonInterrupted)
	}

	tasks, err := r.service.store.ListReconcilable(ctx, now.Add(-r.cfg.MinAge), reconcileBatch)
	if err != nil {
		return err
	}
	logs.Logger.Info().Int("unsubmitted", len(unsubmitted)).Int("reconcilable", len(tasks)).Msg("reconcile sweep")
	for _, task := range tasks {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if r.busy(task.TaskNo) {
			continue
		}
		r.reconcile(ctx, task, now)
	}
	return nil
}

func (r *Reconciler) busy(taskNo string) bool {
	_, ok := r.service.inflight.Load(taskNo)
	return ok
}

// reconcile polls the row once more. A row past cfg.GiveUpAfter is failed
// only when that poll still times out.
func (r *Reconciler) reconcile(ctx context.Context, task model.GenerationTask, now time.Time) {
	if _, loaded := r.service.inflight.LoadOrStore(task.TaskNo, struct{}{}); loaded {
		return
	}
	defer r.service.inflight.Delete(task.TaskNo)

	if err := r.service.store.IncrReconcileCount(ctx, task.TaskNo); err != nil {
		logs.Logger.Err(err).Str("task_no", task.TaskNo).Msg("increase reconcile count")
	}
	opts := r.service.poll
	opts.MaxAttempts = r.cfg.MaxAttempts
	opts.MaxWait = 0
	assetURL, err := r.service.media.Poll(ctx, task.ProviderTaskId.String, consts.MediaKind(task.Kind), opts)
	if err != nil && errors.Is(err, media.ErrProviderTimeout) {
		if r.cfg.GiveUpAfter > 0 && now.Sub(task.CreatedAt) > r.cfg.GiveUpAfter {
			r.service.fail(ctx, task, reasonProviderTimeout)
		}
		return
	}
	_ = r.service.settle(ctx, task, assetURL, err)
}
