package engine

import (
	"context"
	"log"
	"net/http"
	"sync"

	"offline-sync-agent/internal/cachestore"
	"offline-sync-agent/internal/config"
	"offline-sync-agent/internal/control"
	"offline-sync-agent/internal/push"
	"offline-sync-agent/internal/queue"
	"offline-sync-agent/internal/realtime"
	"offline-sync-agent/internal/rules"
	"offline-sync-agent/internal/syncer"

	"gorm.io/gorm"
)

// Engine wires the resilience components around one durable store handle.
// Everything is constructed here and passed by reference; no component keeps
// package-level mutable state.
type Engine struct {
	Config  config.Config
	Rules   *rules.Engine
	Store   *cachestore.Store
	Fetcher *cachestore.Fetcher
	Queue   *queue.Queue
	Hub     *realtime.Hub
	Syncer  *syncer.Processor
	Push    *push.Router
	Control *control.Channel
	Client  *http.Client

	activateOnce sync.Once
}

// New assembles an engine instance over an opened database handle.
func New(cfg config.Config, db *gorm.DB) *Engine {
	client := &http.Client{Timeout: cfg.Cache.FetchTimeout()}

	store := cachestore.NewStore(db, cfg.Cache.MaxEntries, cfg.Cache.MaxAge())
	fetcher := &cachestore.Fetcher{
		Store:        store,
		Client:       client,
		Origin:       cfg.Origin,
		FallbackPath: cfg.Cache.OfflineFallbackPath,
	}

	q := queue.New(db, queue.Options{
		MaxEntries:   cfg.Sync.MaxEntries,
		MaxBodyBytes: cfg.Sync.MaxBodyBytes,
		MaxAge:       cfg.Sync.MaxAge(),
		MaxAttempts:  cfg.Sync.MaxAttempts,
		RetryDelays:  cfg.Sync.RetryDelays(),
	})

	hub := realtime.NewHub()
	proc := &syncer.Processor{Queue: q, Client: client, Hub: hub}

	e := &Engine{
		Config:  cfg,
		Rules:   rules.New(cfg.Cache),
		Store:   store,
		Fetcher: fetcher,
		Queue:   q,
		Hub:     hub,
		Syncer:  proc,
		Push:    push.NewRouter(cfg.Push),
		Client:  client,
	}
	e.Control = &control.Channel{
		Warm:          fetcher.Warm,
		Drain:         proc.Drain,
		Queue:         q,
		Origin:        cfg.Origin,
		OnSkipWaiting: e.Activate,
	}
	return e
}

// Activate performs the activation handoff: the precache list is warmed
// exactly once per process, whether triggered by startup or by SKIP_WAITING.
func (e *Engine) Activate() {
	e.activateOnce.Do(func() {
		if len(e.Config.Cache.PrecacheURLs) == 0 {
			return
		}
		warmed := e.Fetcher.Warm(context.Background(), e.Config.Cache.PrecacheURLs)
		log.Printf("precache warmed %d/%d resources", warmed, len(e.Config.Cache.PrecacheURLs))
	})
}
