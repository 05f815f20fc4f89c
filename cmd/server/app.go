package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/warp/ap-engine/api"
	"github.com/warp/ap-engine/config"
	"github.com/warp/ap-engine/docstore"
	"github.com/warp/ap-engine/ingestion"
	"github.com/warp/ap-engine/learning"
	"github.com/warp/ap-engine/matching"
	"github.com/warp/ap-engine/monitor"
	"github.com/warp/ap-engine/store/sqlite"
	"github.com/warp/ap-engine/workflow"
)

// app holds every wired component. Commands use the parts they need.
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	store    *sqlite.Store
	docs     docstore.Store
	workflow *workflow.Service
	orch     *ingestion.Orchestrator
	monitor  *monitor.Scheduler

	closers []func() error
}

func newApp(ctx context.Context, configFile string) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	log := config.NewLogger(cfg.Log.Level)
	a := &app{cfg: cfg, log: log}

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	switch cfg.Storage.Provider {
	case "gcs":
		gcs, err := docstore.NewGCS(ctx, cfg.Storage.Bucket, cfg.Storage.Prefix, cfg.Storage.CredentialsFile)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.docs = gcs
		a.closers = append(a.closers, gcs.Close)
	default:
		local, err := docstore.NewLocal(cfg.Storage.Dir)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.docs = local
	}

	matcher, err := matching.NewMatcher(cfg.Matching.FuzzyStrategy, cfg.Matching.FuzzyThreshold)
	if err != nil {
		a.Close()
		return nil, err
	}
	engine := matching.NewEngine(store, matcher, cfg.EngineConfig(), log)
	learner := learning.NewLearner(store, cfg.LearningConfig(), log)

	var locker workflow.Locker
	if cfg.Redis.Address != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			a.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.Redis.Address, err)
		}
		a.closers = append(a.closers, rdb.Close)
		locker = workflow.NewRedisLocker(rdb, cfg.Redis.LockTTL)
		log.WithField("address", cfg.Redis.Address).Info("using redis invoice locks")
	}
	a.workflow = workflow.NewService(store, engine, learner, locker, workflow.Options{
		RematchWorkers: cfg.Rematch.Workers,
		QueueSize:      cfg.Rematch.QueueSize,
	}, log)

	extractor := ingestion.NewHTTPExtractor(cfg.Extraction.URL, cfg.Extraction.APIKey, cfg.Extraction.Timeout)
	ingester := ingestion.NewService(store, extractor, a.docs, log)
	a.orch = ingestion.NewOrchestrator(ingester, store, a.workflow, cfg.IngestionOptions(), log)

	a.monitor = monitor.NewScheduler(store, learning.NewPromoter(store, cfg.LearningConfig(), log), log)
	a.monitor.Interval = cfg.Monitor.Interval
	a.monitor.DiscountWindowDays = cfg.Monitor.DiscountWindowDays
	a.monitor.Enabled = cfg.Monitor.Interval > 0

	return a, nil
}

func (a *app) handler() *api.Handler {
	return api.NewHandler(a.store, a.workflow, a.orch, a.docs, a.monitor, a.log)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Warn("close failed")
		}
	}
}
