// Package maintenance runs the structural background jobs. Every job
// signature is (ctx, *store.Client, tenantID) — there is no carrier
// parameter anywhere in this package, so content access from a scheduled
// job cannot typecheck. Work that needs content is enqueued as a pending
// action and waits for a key window.
package maintenance

import (
	"context"
	"time"

	"github.com/zhenzou/executors"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"

	"github.com/looplj/memvault/internal/log"
	"github.com/looplj/memvault/internal/metrics"
	"github.com/looplj/memvault/internal/objects"
	"github.com/looplj/memvault/internal/server/biz"
	"github.com/looplj/memvault/internal/store"
)

type Config struct {
	CRON        string `conf:"cron"        yaml:"cron"        json:"cron"        validate:"required"`
	Concurrency int    `conf:"concurrency" yaml:"concurrency" json:"concurrency"`

	DecayHalfLife time.Duration `conf:"decay_half_life" yaml:"decay_half_life" json:"decay_half_life"`
	DecayIdle     time.Duration `conf:"decay_idle"      yaml:"decay_idle"      json:"decay_idle"`
	DecayFloor    float64       `conf:"decay_floor"     yaml:"decay_floor"     json:"decay_floor"`
	DecayInterval time.Duration `conf:"decay_interval"  yaml:"decay_interval"  json:"decay_interval"`

	OrphanAge time.Duration `conf:"orphan_age" yaml:"orphan_age" json:"orphan_age"`

	ClusterThreshold float64 `conf:"cluster_threshold" yaml:"cluster_threshold" json:"cluster_threshold"`
	ClusterMaxPairs  int     `conf:"cluster_max_pairs" yaml:"cluster_max_pairs" json:"cluster_max_pairs"`

	InferenceThreshold float64 `conf:"inference_threshold" yaml:"inference_threshold" json:"inference_threshold"`
	InferenceDamping   float64 `conf:"inference_damping"   yaml:"inference_damping"   json:"inference_damping"`

	VisibilityTimeout time.Duration `conf:"visibility_timeout" yaml:"visibility_timeout" json:"visibility_timeout"`
	MaxActionAge      time.Duration `conf:"max_action_age"     yaml:"max_action_age"     json:"max_action_age"`
}

func (c Config) withDefaults() Config {
	if c.CRON == "" {
		c.CRON = "*/10 * * * *"
	}

	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}

	if c.DecayHalfLife <= 0 {
		c.DecayHalfLife = 7 * 24 * time.Hour
	}

	if c.DecayIdle <= 0 {
		c.DecayIdle = 24 * time.Hour
	}

	if c.DecayFloor <= 0 {
		c.DecayFloor = 0.05
	}

	if c.DecayInterval <= 0 {
		c.DecayInterval = 10 * time.Minute
	}

	if c.OrphanAge <= 0 {
		c.OrphanAge = 30 * 24 * time.Hour
	}

	if c.ClusterThreshold <= 0 {
		c.ClusterThreshold = 0.92
	}

	if c.ClusterMaxPairs <= 0 {
		c.ClusterMaxPairs = 8
	}

	if c.InferenceThreshold <= 0 {
		c.InferenceThreshold = 0.7
	}

	if c.InferenceDamping <= 0 {
		c.InferenceDamping = 0.5
	}

	if c.VisibilityTimeout <= 0 {
		c.VisibilityTimeout = 15 * time.Minute
	}

	if c.MaxActionAge <= 0 {
		c.MaxActionAge = 30 * 24 * time.Hour
	}

	return c
}

// Worker schedules and runs the structural maintenance jobs.
type Worker struct {
	Store         *store.Client
	TenantService *biz.TenantService
	QueueService  *biz.QueueService
	Executor      executors.ScheduledExecutor
	Config        Config
	CancelFunc    context.CancelFunc

	norms *normCache
}

type Params struct {
	fx.In

	Config        Config
	Store         *store.Client
	TenantService *biz.TenantService
	QueueService  *biz.QueueService
}

func NewWorker(params Params) *Worker {
	return &Worker{
		Store:         params.Store,
		TenantService: params.TenantService,
		QueueService:  params.QueueService,
		Executor:      executors.NewPoolScheduleExecutor(executors.WithMaxConcurrent(1)),
		Config:        params.Config.withDefaults(),
		norms:         newNormCache(4096),
	}
}

func (w *Worker) Start(ctx context.Context) error {
	cancelFunc, err := w.Executor.ScheduleFuncAtCronRate(
		func(ctx context.Context) {
			if err := w.RunOnce(ctx); err != nil {
				log.Error(ctx, "maintenance run failed", log.Cause(err))
			}
		},
		executors.CRONRule{Expr: w.Config.CRON},
	)
	if err != nil {
		return err
	}

	w.CancelFunc = cancelFunc

	log.Info(ctx, "maintenance worker started", log.String("cron", w.Config.CRON))

	return nil
}

func (w *Worker) Stop(ctx context.Context) error {
	if w.CancelFunc != nil {
		w.CancelFunc()
	}

	return w.Executor.Shutdown(ctx)
}

// RunOnce executes one full maintenance pass: the per-tenant structural
// jobs fanned out over bounded concurrency, then queue hygiene. Job
// failures are logged and retried on the next tick, never escalated.
func (w *Worker) RunOnce(ctx context.Context) error {
	ctx = store.NewContext(ctx, w.Store)

	tenants, err := w.TenantService.ListActive(ctx)
	if err != nil {
		return err
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(w.Config.Concurrency)

	for _, tenant := range tenants {
		g.Go(func() error {
			w.runTenantJobs(groupCtx, tenant)
			return nil
		})
	}

	_ = g.Wait()

	w.runJob(ctx, "queue-hygiene", 0, w.runHygiene)

	return nil
}

func (w *Worker) runTenantJobs(ctx context.Context, tenant *objects.Tenant) {
	jobs := []struct {
		name string
		fn   func(context.Context, int) error
	}{
		{"importance-decay", w.runDecay},
		{"orphan-detection", w.runOrphanDetection},
		{"similarity-clustering", w.runClustering},
		{"connection-inference", w.runInference},
		{"extraction-refresh-scan", w.runExtractionScan},
		{"anchor-staleness-scan", w.runAnchorScan},
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}

		w.runJob(ctx, job.name, tenant.ID, job.fn)
	}
}

func (w *Worker) runJob(ctx context.Context, name string, tenantID int, fn func(context.Context, int) error) {
	started := time.Now()
	err := fn(ctx, tenantID)

	metrics.RecordMaintenanceJob(ctx, name, time.Since(started), err)

	if err != nil {
		log.Error(ctx, "maintenance job failed",
			log.String("job", name),
			log.Int("tenant_id", tenantID),
			log.Cause(err),
		)
	}
}
