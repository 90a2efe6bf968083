package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql "pgx" driver for the whatsmeow store
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"golang.org/x/time/rate"

	"github.com/beaconhq/beacon/db"
	"github.com/beaconhq/beacon/internal/api"
	"github.com/beaconhq/beacon/internal/channel"
	"github.com/beaconhq/beacon/internal/channel/whatsapp"
	"github.com/beaconhq/beacon/internal/chunk"
	"github.com/beaconhq/beacon/internal/config"
	"github.com/beaconhq/beacon/internal/engine"
	"github.com/beaconhq/beacon/internal/knowledge"
	"github.com/beaconhq/beacon/internal/log"
	"github.com/beaconhq/beacon/internal/provider"
	"github.com/beaconhq/beacon/internal/settings"
)

// embedRateLimit bounds embedding calls per second across answering and
// ingestion; bursts up to the same size pass through unthrottled.
const embedRateLimit = 10

// Setup creates and initializes the application. On error everything
// already initialized is released.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = log.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	pool, err := providePool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, err := provideGenkit(ctx)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	retry := provider.DefaultRetryConfig()
	limiter := rate.NewLimiter(rate.Limit(embedRateLimit), embedRateLimit)
	embedder := provider.NewEmbedder(
		googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel),
		limiter, retry, logger,
	)
	generator := provider.NewGenerator(g, "googleai/"+cfg.ModelName, retry, logger)

	splitter, err := chunk.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("configuring splitter: %w", err)
	}

	a.Store = knowledge.NewPostgresStore(pool, cfg.EmbedDimension, logger)
	a.Ingestor = knowledge.NewIngestor(splitter, embedder, a.Store, logger)
	a.Settings = settings.NewPostgresStore(pool)
	a.Engine = engine.New(embedder, generator, a.Store, a.Settings, logger)

	manager, err := provideManager(ctx, cfg, a.Engine, a.Settings, pool, logger)
	if err != nil {
		return nil, err
	}
	a.Manager = manager

	a.Server = api.NewServer(a.Engine, a.Ingestor, a.Store, a.Settings, a.Manager, pool, logger)

	return a, nil
}

// providePool runs migrations and opens the pgx pool. Every connection
// registers the pgvector codec so []float32 embeddings scan natively.
func providePool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresURL())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideGenkit initializes genkit with the Google AI plugin. The plugin
// reads GEMINI_API_KEY from the environment.
func provideGenkit(ctx context.Context) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit")
	}
	return g, nil
}

// provideManager builds the messaging session manager over a whatsmeow
// transport. Credentials live in the same database as everything else.
func provideManager(ctx context.Context, cfg *config.Config, eng *engine.Engine, gate settings.Store, pool *pgxpool.Pool, logger log.Logger) (*channel.Manager, error) {
	container, err := whatsapp.NewContainer(ctx, cfg.PostgresURL(), logger)
	if err != nil {
		return nil, err
	}

	transport := whatsapp.NewTransport(container, cfg.ChannelDeviceName, logger)
	messages := channel.NewPostgresMessageLog(pool)

	return channel.NewManager(transport, eng, gate, messages, cfg.ReinitDelay, logger), nil
}
