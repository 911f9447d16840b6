package app

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"goalpace/internal/config"
	"goalpace/internal/db"
	"goalpace/internal/engine"
	"goalpace/internal/ledger"
	"goalpace/internal/ledger/redisstore"
	"goalpace/internal/migrate"
	"goalpace/internal/repo"
)

// Runtime is a configured engine plus the resources backing its ledger.
type Runtime struct {
	Config *config.Config
	Engine engine.Engine
	// Repo is set only for the sqlite backend, which also carries the event log.
	Repo *repo.Repo

	conn  *sql.DB
	redis *redis.Client
}

// ResolveConfig loads configPath when given, else the workspace goalpace.yml,
// falling back to built-in defaults when neither exists.
func ResolveConfig(workspace, configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.FromFile(configPath)
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}

// Open wires the engine over the configured ledger backend.
func Open(ctx context.Context, workspace string, cfg *config.Config, logger *log.Logger) (*Runtime, error) {
	if logger == nil {
		logger = log.Default()
	}
	rt := &Runtime{Config: cfg}
	var store ledger.Store
	switch cfg.Ledger.Backend {
	case config.LedgerRedis:
		client := redisstore.NewClient(cfg.Ledger.Redis.Addr, cfg.Ledger.Redis.Password, cfg.Ledger.Redis.DB)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Ledger.Redis.Addr, err)
		}
		rt.redis = client
		store = redisstore.New(client, cfg.Ledger.Redis.Prefix)
		logger.Debug("ledger backend", "backend", "redis", "addr", cfg.Ledger.Redis.Addr)
	default:
		dbCfg := db.Config{Workspace: workspace}
		if cfg.Ledger.Path != "" {
			dbCfg.Path = cfg.Ledger.Path
			if !filepath.IsAbs(dbCfg.Path) && workspace != "" {
				dbCfg.Path = filepath.Join(workspace, dbCfg.Path)
			}
		}
		conn, err := db.Open(dbCfg)
		if err != nil {
			return nil, err
		}
		applied, err := migrate.MigrateContext(ctx, conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		if applied > 0 {
			logger.Info("applied migrations", "count", applied, "db", db.Path(dbCfg))
		}
		r := repo.New(conn)
		rt.conn = conn
		rt.Repo = &r
		store = r
		logger.Debug("ledger backend", "backend", "sqlite", "db", db.Path(dbCfg))
	}
	eng, err := engine.New(cfg, store, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Engine = eng
	return rt, nil
}

func (rt *Runtime) Close() error {
	var err error
	if rt.conn != nil {
		err = rt.conn.Close()
	}
	if rt.redis != nil {
		if cerr := rt.redis.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
