// Package questd parses the quest service command flags and starts the
// authority runtime: catalog load, durable store, session registry, quest
// engine, and the replication endpoint.
package questd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/suit-up-repos/questd/internal/catalog"
	"github.com/suit-up-repos/questd/internal/engine"
	entrypoint "github.com/suit-up-repos/questd/internal/platform/cmd"
	"github.com/suit-up-repos/questd/internal/platform/timeouts"
	"github.com/suit-up-repos/questd/internal/replication/ws"
	"github.com/suit-up-repos/questd/internal/session"
	"github.com/suit-up-repos/questd/internal/storage/sqlite"
	"github.com/suit-up-repos/questd/internal/telemetry"
)

// Config holds quest service command configuration.
type Config struct {
	Port         int           `env:"QUESTD_PORT" envDefault:"8080"`
	Addr         string        `env:"QUESTD_ADDR"`
	DBPath       string        `env:"QUESTD_DB_PATH" envDefault:"questd.db"`
	CatalogPath  string        `env:"QUESTD_CATALOG_PATH" envDefault:"catalog.lua"`
	ReadyTimeout time.Duration `env:"QUESTD_READY_TIMEOUT" envDefault:"5s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The quest server port")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The quest server listen address (overrides -port)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the sqlite database file")
	fs.StringVar(&cfg.CatalogPath, "catalog", cfg.CatalogPath, "Path to the Lua quest catalog")
	fs.DurationVar(&cfg.ReadyTimeout, "ready-timeout", cfg.ReadyTimeout, "Bounded wait for session readiness")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the quest authority service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceQuestd, func(ctx context.Context) error {
		return serve(ctx, cfg)
	})
}

func serve(ctx context.Context, cfg Config) error {
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("close store: %v", err)
		}
	}()

	defs, err := catalog.LoadLuaFile(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	cat, err := catalog.New(defs...)
	if err != nil {
		return fmt.Errorf("build catalog: %w", err)
	}
	log.Printf("catalog loaded quests=%d path=%s", cat.Len(), cfg.CatalogPath)

	registry := session.NewRegistry(cfg.ReadyTimeout)
	replicationServer, err := ws.NewServer(store, store, 0)
	if err != nil {
		return fmt.Errorf("replication server: %w", err)
	}
	defer replicationServer.Close()

	eng, err := engine.New(cat, store, registry, replicationServer, telemetry.NewEmitter(store))
	if err != nil {
		return fmt.Errorf("quest engine: %w", err)
	}
	replicationServer.SetSessionHooks(eng)

	addr := cfg.Addr
	if addr == "" {
		addr = fmt.Sprintf(":%d", cfg.Port)
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           replicationServer.Handler(),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("quest server listening on %s", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
