package main

import (
	"github.com/pkg/errors"

	"github.com/kimhsiao/fieldsync/internal/blob"
	"github.com/kimhsiao/fieldsync/internal/clock"
	"github.com/kimhsiao/fieldsync/internal/config"
	"github.com/kimhsiao/fieldsync/internal/db"
	apperrors "github.com/kimhsiao/fieldsync/internal/errors"
	"github.com/kimhsiao/fieldsync/internal/kv"
	"github.com/kimhsiao/fieldsync/internal/logging"
	"github.com/kimhsiao/fieldsync/internal/remote"
	syncpkg "github.com/kimhsiao/fieldsync/internal/sync"
	"github.com/kimhsiao/fieldsync/internal/sync/backoff"
	"github.com/kimhsiao/fieldsync/internal/sync/conflictlog"
	"github.com/kimhsiao/fieldsync/internal/sync/photo"
	"github.com/kimhsiao/fieldsync/internal/sync/queue"
)

// app holds everything a command needs, opened from config.
type app struct {
	cfg       config.Config
	database  *db.DB
	store     *db.Store
	queue     *queue.Queue
	conflicts *conflictlog.Log
	network   *syncpkg.Network
	engine    *syncpkg.Engine
}

// requireRemote fails commands that talk to the server when none is set.
func (a *app) requireRemote() error {
	if a.cfg.RemoteConfigured() {
		return nil
	}
	return apperrors.New(apperrors.ErrSyncNotConfigured,
		"no remote configured, set remote.url and site_id (FIELDSYNC_REMOTE_URL, FIELDSYNC_SITE_ID)")
}

func openApp(opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	logging.InitWithFile(logging.ParseLevel(cfg.Log.Level), logging.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, errors.Wrap(err, "migrating database")
	}
	store, err := kv.NewSQLite(database.DB)
	if err != nil {
		database.Close()
		return nil, errors.Wrap(err, "opening key-value store")
	}

	c := clock.New()
	records := db.NewStore(database, c)
	b := backoff.New(backoff.FromConfig(cfg.Backoff), c)
	q := queue.New(store, b, c)
	conflicts := conflictlog.New(store, c)
	network := syncpkg.NewNetwork(!opts.offline, !opts.offline && !opts.cellular)

	// src stays nil without a remote; the engine then refuses to sync.
	var src remote.Source
	if cfg.RemoteConfigured() {
		client := remote.NewClient(remote.ClientConfig{
			BaseURL:         cfg.Remote.URL,
			APIKey:          cfg.Remote.APIKey,
			Timeout:         cfg.Remote.Timeout,
			RateLimitPerSec: cfg.Remote.RateLimitPerSec,
		})
		src = remote.NewQueries(client, cfg.SiteID)
	}

	cache := blob.NewLocalCache(cfg.PhotoCacheDir())
	var photos *photo.Syncer
	if cfg.BlobConfigured() {
		tracker := photo.NewTracker(store, b, c)
		photos = photo.NewSyncer(records, blob.FromConfig(cfg.Blob), cache, tracker, c)
	}

	engine := syncpkg.NewEngine(syncpkg.Options{
		Store:          records,
		Remote:         src,
		Queue:          q,
		Conflicts:      conflicts,
		Photos:         photos,
		KV:             store,
		Network:        network,
		Clock:          c,
		DatabasePath:   cfg.DatabasePath(),
		Cache:          cache,
		StaleThreshold: cfg.Sync.StaleThreshold,
		PruneAfter:     cfg.Sync.PruneAfter,
	})

	return &app{
		cfg:       cfg,
		database:  database,
		store:     records,
		queue:     q,
		conflicts: conflicts,
		network:   network,
		engine:    engine,
	}, nil
}

func (a *app) Close() error {
	return a.database.Close()
}
