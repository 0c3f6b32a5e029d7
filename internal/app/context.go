package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"fieldline/internal/blob"
	"fieldline/internal/config"
	"fieldline/internal/db"
	"fieldline/internal/engine"
	"fieldline/internal/migrate"
	"fieldline/internal/notify"
)

// Workspace is an opened, migrated fieldline workspace.
type Workspace struct {
	Dir     string
	DB      *sql.DB
	Config  *config.Config
	Engine  engine.Engine
	Channel notify.Channel
}

// Options tune Open. ConfigPath overrides <workspace>/fieldline.yml.
type Options struct {
	ConfigPath string
	Logger     *log.Logger
	// MemoryPhotos keeps photos in memory instead of the data directory.
	MemoryPhotos bool
}

// Open loads the config, opens and migrates the database and wires the
// engine with its photo store. Close releases the database.
func Open(ctx context.Context, workspace string, opts Options) (*Workspace, error) {
	cfg, err := loadConfig(workspace, opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	blobs := blob.NewMem()
	if !opts.MemoryPhotos {
		blobs = blob.NewOS(cfg.PhotoDir(db.DataDir(workspace)), cfg.Photos.MaxBytes)
	}
	e := engine.New(conn, cfg, blobs)
	if opts.Logger != nil {
		e.Logger = opts.Logger
	}
	return &Workspace{
		Dir:     workspace,
		DB:      conn,
		Config:  cfg,
		Engine:  e,
		Channel: notify.NewStoreChannel(e.Repo, cfg),
	}, nil
}

func (w *Workspace) Close() error {
	if w == nil || w.DB == nil {
		return nil
	}
	return w.DB.Close()
}

// loadConfig prefers an explicit path, then the workspace file, then the
// defaults.
func loadConfig(workspace, path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.FromFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		return cfg, nil
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg == nil {
		return config.Default(), nil
	}
	return cfg, nil
}
