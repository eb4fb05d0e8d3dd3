// Package bootstrap wires the analyzer service: configuration, logging,
// stores, the matching pipeline, evidence workers, and the HTTP server.
//
// Startup is phased: config and sizing first, then the required stores
// (Postgres, Redis), then optional collaborators (MinIO, Elasticsearch,
// validation scorer, OCR sidecar) which degrade to disabled with a warning,
// then the pipeline and workers, and finally the HTTP server.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/api"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/config"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/content"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/database"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/dlq"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/domainpolicy"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/evidence"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/imagescan"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/logger"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/mlclient"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/objstore"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/processor"
	redisconn "github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/redis"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/render"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/rules"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/search"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/telemetry"
	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/validate"
)

const (
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 30 * time.Second
)

// App holds every component that needs a lifecycle.
type App struct {
	cfg    *config.Config
	logger logger.Logger

	db      *sqlx.DB
	redis   *goredis.Client
	flusher *evidence.Flusher
	shots   *evidence.ScreenshotWorkers
	sweeper *dlq.Sweeper
	server  *http.Server
}

// New builds the application from the config file at path.
func New(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	sizing := config.DefaultSizing()

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	metrics := telemetry.New()

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	redisClient, err := redisconn.NewClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	db, err := database.NewPostgresConnection(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	store, err := objstore.New(ctx, cfg.MinIO, log)
	if err != nil {
		log.Warn("object store unavailable, screenshots will not be stored",
			logger.Error(err))
		store, _ = objstore.New(ctx, config.MinIOConfig{}, log)
	}

	indexer, err := search.New(cfg.Elasticsearch, log)
	if err != nil {
		log.Warn("search index unavailable, summaries will not be indexed",
			logger.Error(err))
		indexer, _ = search.New(config.ElasticsearchConfig{}, log)
	}

	corpus, err := rules.LoadCorpus(cfg.Rules.CorpusPath, log)
	if err != nil {
		return nil, fmt.Errorf("load keyword corpus: %w", err)
	}
	engine := rules.NewEngine(corpus, log)

	renderClient := render.NewClient(render.Config{
		URL:               cfg.Render.URL,
		RenderTimeout:     cfg.Render.RenderTimeout,
		ScreenshotTimeout: cfg.Render.ScreenshotTimeout,
	})

	var scorer validate.Scorer
	if cfg.Validation.Enabled && cfg.Validation.ServiceURL != "" {
		scorer = mlclient.NewClient(cfg.Validation.ServiceURL, cfg.Validation.Timeout)
	}
	gate := validate.New(validate.Config{
		Enabled:   cfg.Validation.Enabled,
		Threshold: cfg.Validation.Threshold,
		CacheMax:  cfg.Validation.CacheMax,
	}, scorer, log)

	var ocr *imagescan.OCRClient
	if cfg.OCR.Enabled && cfg.OCR.URL != "" {
		ocr = imagescan.NewOCRClient(cfg.OCR.URL, cfg.OCR.Timeout)
	}
	scanner := imagescan.NewScanner(imagescan.Config{
		MaxImages:     cfg.ImageScan.MaxImages,
		MaxImageBytes: cfg.ImageScan.MaxImageBytes,
		FetchTimeout:  cfg.ImageScan.FetchTimeout,
	}, engine, ocr, log)

	dlqQueue := dlq.NewQueue(redisClient, cfg.DLQ.TTL, metrics, log)
	recorder := evidence.NewRecorder(
		sizing.HitQueueCap,
		sizing.ScreenshotQueueCap,
		cfg.Evidence.ScreenshotMinConfidence,
		dlqQueue, metrics, log)
	recorder.SetMarkers(evidence.NewRedisMarkers(redisClient, 0, log))

	hitRepo := database.NewHitRepository(db)
	resultRepo := database.NewResultRepository(db)

	flusher := evidence.NewFlusher(hitRepo, recorder.Hits(), dlqQueue, evidence.FlusherConfig{
		Batch:    cfg.Evidence.FlushBatch,
		Interval: cfg.Evidence.FlushInterval,
		Timeout:  cfg.Evidence.FlushTimeout,
	}, metrics, log)
	flusher.SetIndexer(indexer)

	shots, err := evidence.NewScreenshotWorkers(
		cfg.Evidence.ScreenshotWorkers,
		screenshotCapturer{renderClient},
		store, hitRepo,
		recorder.Screenshots(), dlqQueue,
		cfg.Evidence.ScreenshotMaxMatches,
		metrics, log)
	if err != nil {
		return nil, fmt.Errorf("create screenshot workers: %w", err)
	}

	sweeper := dlq.NewSweeper(dlqQueue, recorder,
		cfg.DLQ.SweepInterval, cfg.DLQ.MaxRetries, metrics, log)

	tracker := domainpolicy.NewTracker(redisClient,
		cfg.DomainPolicy.RenderSuccessThreshold, cfg.DomainPolicy.CacheTTL, log)

	htmlCache, err := content.NewHTMLCache(sizing.HTMLCacheCap, recorder.ForgetURL)
	if err != nil {
		return nil, fmt.Errorf("create html cache: %w", err)
	}

	pipeline := processor.NewPipeline(
		content.NewExtractor(cfg.ImageScan.MaxImages),
		engine, scanner, renderClient, tracker, htmlCache,
		cfg.Pipeline.MinTextLength, metrics, log)

	coordinator := processor.NewCoordinator(
		processor.NewAccumulatorStore(cfg.Pipeline.SnippetCapBytes),
		pipeline, gate, recorder, resultRepo, indexer,
		sizing.PageConcurrency, cfg.Pipeline.ChunkSize, metrics, log)
	if cfg.Evidence.ArchiveHTML {
		coordinator.SetArchiver(store)
	}

	checks := []api.ReadyCheck{
		{Name: "postgres", Check: db.PingContext},
		{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}},
	}
	if store.Enabled() {
		checks = append(checks, api.ReadyCheck{Name: "minio", Check: store.HealthCheck})
	}
	if indexer.Enabled() {
		checks = append(checks, api.ReadyCheck{Name: "elasticsearch", Check: indexer.HealthCheck})
	}
	handler := api.NewHandler(
		coordinator, checks, dlqQueue, recorder,
		metrics.Handler(), cfg.Ingest.MaxBodyBytes,
		cfg.Service.Name, cfg.Service.Version, log)
	server := api.NewServer(cfg.Service.Port, api.NewRouter(handler, cfg.Service.Debug))

	log.Info("analyzer wired",
		logger.String("service", cfg.Service.Name),
		logger.Int("port", cfg.Service.Port),
		logger.Int("rules", len(corpus)),
		logger.Int("page_concurrency", sizing.PageConcurrency),
		logger.Bool("validation", cfg.Validation.Enabled),
		logger.Bool("minio", store.Enabled()),
		logger.Bool("elasticsearch", indexer.Enabled()),
		logger.Bool("ocr", ocr != nil))

	return &App{
		cfg:     cfg,
		logger:  log,
		db:      db,
		redis:   redisClient,
		flusher: flusher,
		shots:   shots,
		sweeper: sweeper,
		server:  server,
	}, nil
}

// Run starts the workers and the HTTP server and blocks until SIGINT,
// SIGTERM, or a server error.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.flusher.Start(ctx)
	if err := a.shots.Start(ctx); err != nil {
		return fmt.Errorf("start screenshot workers: %w", err)
	}
	if err := a.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("start dlq sweeper: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", logger.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		a.shutdown()
		return fmt.Errorf("http server: %w", err)
	case sig := <-sigChan:
		a.logger.Info("shutdown signal received", logger.String("signal", sig.String()))
		a.shutdown()
		return nil
	}
}

// shutdown stops components in dependency order: no new requests, then no
// new retries, then drain in-flight evidence, then close the stores.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("http server shutdown failed", logger.Error(err))
	}

	a.sweeper.Stop()
	a.shots.Stop(ctx)
	a.flusher.Stop()

	if err := a.db.Close(); err != nil {
		a.logger.Error("postgres close failed", logger.Error(err))
	}
	if err := a.redis.Close(); err != nil {
		a.logger.Error("redis close failed", logger.Error(err))
	}

	a.logger.Info("analyzer stopped")
	_ = a.logger.Sync()
}

// screenshotCapturer adapts the render client to the screenshot worker's
// capture contract.
type screenshotCapturer struct {
	client *render.Client
}

func (c screenshotCapturer) Screenshot(ctx context.Context, pageURL, keyword string, maxMatches int) ([]byte, []string, error) {
	result, err := c.client.Screenshot(ctx, pageURL, keyword, maxMatches)
	if err != nil {
		return nil, nil, err
	}
	return result.PNG, result.Snippets, nil
}
