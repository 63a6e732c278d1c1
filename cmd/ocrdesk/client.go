package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/kmg/ocrdesk/internal/api"
	"github.com/kmg/ocrdesk/internal/config"
	"github.com/kmg/ocrdesk/internal/console"
	"github.com/kmg/ocrdesk/internal/queue"
	"github.com/kmg/ocrdesk/internal/state"
	"github.com/kmg/ocrdesk/internal/storage"
)

// workspace bundles everything a command needs: config, the transport
// adapter, the state store, the pending queue and the action coordinator.
type workspace struct {
	cfg    config.Config
	client *api.Client
	store  *state.Store
	queue  *queue.Manager
	ctrl   *console.Controller
	db     *storage.Store
	logger *slog.Logger
}

var newWorkspace = func() (*workspace, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	baseURL := cfg.Server.BaseURL
	if serverURL != "" {
		baseURL = serverURL
	}

	logger := newLogger(cfg.Log.Level)
	client := api.New(baseURL)

	// Local persistence is convenience; the console stays usable without it.
	var (
		db        *storage.Store
		persister queue.Persister
		audit     console.Auditor
	)
	if db, err = storage.Open(cfg.Storage.DataDir); err != nil {
		logger.Warn("opening local storage failed, queue will not persist", "error", err)
		db = nil
	} else {
		persister = dbPersister{db}
		audit = db
	}

	store := state.New(client, logger)
	q := queue.NewManager(client, persister)
	ctrl := console.NewController(client, store, q, audit, logger)

	return &workspace{
		cfg:    cfg,
		client: client,
		store:  store,
		queue:  q,
		ctrl:   ctrl,
		db:     db,
		logger: logger,
	}, nil
}

func (w *workspace) Close() {
	if w.db != nil {
		w.db.Close()
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// dbPersister bridges the queue manager to sqlite storage.
type dbPersister struct {
	db *storage.Store
}

func (p dbPersister) SavePending(entries []queue.Entry) error {
	folders := make([]storage.PendingFolder, len(entries))
	for i, e := range entries {
		folders[i] = storage.PendingFolder{Path: e.Path, ImageCount: e.ImageCount, Note: e.Note}
	}
	return p.db.SavePendingFolders(folders)
}

func (p dbPersister) LoadPending() ([]queue.Entry, error) {
	folders, err := p.db.LoadPendingFolders()
	if err != nil {
		return nil, err
	}
	entries := make([]queue.Entry, len(folders))
	for i, f := range folders {
		entries[i] = queue.Entry{Path: f.Path, ImageCount: f.ImageCount, Note: f.Note}
	}
	return entries, nil
}
