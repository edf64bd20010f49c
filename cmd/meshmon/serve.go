package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"meshmon/ai"
	"meshmon/config"
	"meshmon/dispatch"
	"meshmon/engine"
	"meshmon/logger"
	"meshmon/messaging"
	"meshmon/nodestate"
	"meshmon/polling"
	"meshmon/radio"
	"meshmon/store"
	"meshmon/www"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the mesh monitor",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Sync()

	// Database, with the degraded fallback when the configured store
	// cannot be opened.
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Infof("meshmon: database open (%s)", cfg.Database.Driver)

	// Redis mirror, optional
	var redisStore *nodestate.RedisStore
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Warnf("meshmon: redis not available (%v), running without cache", err)
		redisClient.Close()
	} else {
		logger.Infof("meshmon: redis connected (%s)", cfg.Redis.Address)
		redisStore = nodestate.NewRedisStore(redisClient)
		defer redisClient.Close()
	}
	pingCancel()

	nodeState := nodestate.NewManager(db, redisStore)
	if nodeState.Enabled() {
		if err := nodeState.SyncFromSQL(context.Background()); err != nil {
			logger.Warnf("meshmon: redis sync from SQL: %v", err)
		}
	}

	// Kafka export, optional
	var exporter engine.Exporter
	if len(cfg.Messaging.Kafka.Brokers) > 0 {
		producer := messaging.NewProducer(&cfg.Messaging)
		if err := producer.Connect(); err != nil {
			logger.Warnf("meshmon: kafka connect failed (%v), events stay local", err)
		} else {
			exporter = producer
			defer producer.Close()
		}
	}

	// Conversational rephraser, optional
	rephraser, err := ai.New(context.Background(), cfg.AI)
	if err != nil {
		logger.Warnf("meshmon: ai rephraser unavailable: %v", err)
	}

	// Polled external sources
	var sources []*polling.Source
	for _, sc := range cfg.EnabledSources() {
		sources = append(sources, polling.NewHTTPSource(sc))
	}

	rdo := radio.NewMQTTRadio(cfg.Radio)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := engine.New(engine.Config{
		AppConfig: cfg,
		DB:        db,
		Radio:     rdo,
		Rephraser: rephraserOrNil(rephraser),
		Mirror:    mirrorOrNil(nodeState),
		Exporter:  exporter,
		Sources:   sources,
	})
	eng.Start(ctx)
	defer eng.Stop()

	srv := www.NewServer(cfg.Web, www.NewRouter(eng, nodeState))
	srv.Start()

	logger.Infof("meshmon: ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("meshmon: shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("meshmon: web shutdown: %v", err)
	}
	return nil
}

// openStore opens the configured database. On failure it writes the
// degraded marker and retries with a throwaway sqlite file so the
// monitor keeps running; nothing recorded in that mode survives.
func openStore(cfg *config.Config) (*store.DB, error) {
	db, err := store.Open(&cfg.Database)
	if err == nil {
		return db, nil
	}
	logger.Errorf("meshmon: open database: %v", err)

	marker := cfg.Monitor.FallbackMarkerPath
	if marker != "" {
		msg := fmt.Sprintf("%s degraded: %v\n", time.Now().Format(time.RFC3339), err)
		if werr := os.WriteFile(marker, []byte(msg), 0644); werr != nil {
			logger.Errorf("meshmon: write fallback marker: %v", werr)
		}
	}

	fallbackDB := config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(os.TempDir(), "meshmon-fallback.db")},
	}
	db, ferr := store.Open(&fallbackDB)
	if ferr != nil {
		return nil, fmt.Errorf("open database: %w (fallback also failed: %v)", err, ferr)
	}
	logger.Warnf("meshmon: running degraded on %s", fallbackDB.SQLite.Path)
	return db, nil
}

// rephraserOrNil avoids a typed-nil interface when AI is disabled.
func rephraserOrNil(r *ai.Rephraser) dispatch.Rephraser {
	if r == nil {
		return nil
	}
	return r
}

// mirrorOrNil avoids a typed-nil interface when redis is absent.
func mirrorOrNil(m *nodestate.Manager) engine.Mirror {
	if m == nil || !m.Enabled() {
		return nil
	}
	return m
}
