// Command memoryd runs the long-term conversational memory engine: it
// wires the store, caches, ANN index, embedding client, retrieval and
// ingestion pipelines, decay engine, and monitoring into a single
// process, and serves until an interrupt triggers a graceful shutdown.
package main

import (
	"context"
	"crypto/rand"
	"log"
	"math/big"
	mathrand "math/rand"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/driftline/memorycore/internal/memory/annindex"
	"github.com/driftline/memorycore/internal/memory/cache"
	"github.com/driftline/memorycore/internal/memory/config"
	"github.com/driftline/memorycore/internal/memory/decay"
	"github.com/driftline/memorycore/internal/memory/embedding"
	"github.com/driftline/memorycore/internal/memory/engine"
	"github.com/driftline/memorycore/internal/memory/ingestion"
	"github.com/driftline/memorycore/internal/memory/lifecycle"
	"github.com/driftline/memorycore/internal/memory/metrics"
	"github.com/driftline/memorycore/internal/memory/observability"
	"github.com/driftline/memorycore/internal/memory/pool"
	"github.com/driftline/memorycore/internal/memory/retrieval"
	"github.com/driftline/memorycore/internal/memory/security"
	"github.com/driftline/memorycore/internal/memory/storageexport"
	"github.com/driftline/memorycore/internal/memory/store"
	"github.com/go-redis/redis/v8"

	_ "github.com/lib/pq"
)

func main() {
	initSecureRandom()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := observability.NewStandardLogger("memoryd")
	metricsClient := observability.NewPrometheusMetrics(nil)
	defer metricsClient.Close()

	db, err := store.Open(ctx, store.Config{
		DSN:             cfg.Pool.DSN,
		MaxOpenConns:    cfg.Pool.MaxOpenConns,
		MaxIdleConns:    cfg.Pool.MaxIdleConns,
		ConnMaxLifetime: cfg.Pool.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer db.Close()

	dbPool := pool.NewPool("memorycore-store", pool.Config{
		AcquireTimeout: cfg.Pool.AcquireTimeout,
		MaxRetries:     cfg.Pool.MaxRetries,
	}, logger, metricsClient)

	var enc *security.EncryptionService
	if cfg.Security.EncryptionEnabled {
		enc = security.NewEncryptionService(cfg.Security.MasterEncryptionKey, cfg.Security.KeyDerivationIters)
	}

	httpProvider := embedding.NewHTTPProvider(embedding.HTTPProviderConfig{
		Endpoint:       cfg.Embedding.Endpoint,
		Model:          cfg.Embedding.Model,
		RequestTimeout: cfg.Embedding.RequestTimeout,
	})
	embedClient := embedding.NewClient(httpProvider, embedding.ClientConfig{
		BatchSize:          cfg.Embedding.BatchSize,
		ConcurrencyCeiling: cfg.Embedding.ConcurrencyCeiling,
		MaxRetries:         cfg.Embedding.MaxRetries,
		RetryBaseDelay:     cfg.Embedding.RetryBaseDelay,
	}, logger, metricsClient)

	var redisCache cache.ResultCache
	if cfg.Cache.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Address,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		redisCache = cache.NewRedisL3(redisClient, "", cfg.Cache.L3TTL)
	}
	tiered, err := cache.NewTieredCache(cache.TieredConfig{
		L1Size:      cfg.Cache.L1Size,
		L2Size:      cfg.Cache.L2Size,
		L2Threshold: cfg.Cache.SemanticCacheThreshold,
		L3Size:      cfg.Cache.L3Size,
		L3TTL:       cfg.Cache.L3TTL,
		Redis:       redisCache,
	}, metricsClient)
	if err != nil {
		log.Fatalf("failed to build tiered cache: %v", err)
	}
	defer tiered.Close()

	annManager := annindex.NewManager(annindex.Config{
		M:              cfg.ANN.M,
		EfConstruction: cfg.ANN.EfConstruction,
		EfSearch:       cfg.ANN.EfSearch,
	})
	warmUpCtx, warmUpCancel := context.WithTimeout(ctx, 2*time.Minute)
	if err := annManager.WarmUp(warmUpCtx, db); err != nil {
		logger.Error("failed to warm up ANN index from store", map[string]interface{}{"error": err.Error()})
	}
	warmUpCancel()

	lexicon := retrieval.DefaultLexicon()

	retrievalPipeline := retrieval.NewPipeline(db, embedClient, annManager, tiered, enc, lexicon, retrieval.Config{
		NAnnThreshold:      cfg.Retrieval.NAnnThreshold,
		DefaultK:           cfg.Retrieval.DefaultK,
		RerankPoolSize:     cfg.Retrieval.RerankPoolSize,
		DiversityPenalty:   cfg.Retrieval.DiversityPenalty,
		EnableHybridFusion: cfg.Retrieval.EnableHybridFusion,
		EnableMMR:          cfg.Retrieval.EnableMMR,
	}, metricsClient)

	ingestionPipeline := ingestion.NewPipeline(db, embedClient, annManager, tiered, enc, lexicon, ingestion.Config{
		DenyList: cfg.DenyList,
	}, metricsClient)

	var snapshotter decay.Snapshotter
	var exportStore engine.ExportStore
	if cfg.Export.Enabled {
		exportClient, err := storageexport.NewClient(ctx, storageexport.Config{
			Enabled:   cfg.Export.Enabled,
			Bucket:    cfg.Export.Bucket,
			Prefix:    cfg.Export.Prefix,
			Region:    cfg.Export.Region,
			AccessKey: cfg.Export.AccessKey,
			SecretKey: cfg.Export.SecretKey,
		})
		if err != nil {
			log.Fatalf("failed to build S3 export client: %v", err)
		}
		snapshotter = exportClient
		exportStore = exportClient
	}

	decayEngine := decay.NewEngine(db, snapshotter, decay.Config{
		HalfLife:                   cfg.Decay.HalfLifeDuration(),
		SweepInterval:              cfg.Decay.SweepInterval,
		CleanupMinAge:              cfg.Decay.CleanupMinAgeDuration(),
		RetentionHorizon:           cfg.Decay.RetentionHorizonDuration(),
		RetentionImportanceCeiling: cfg.Decay.RetentionImportanceCeiling,
		ClusterOptimizeInterval:    cfg.Decay.ClusterOptimizeInterval,
		SweepBatchSize:             cfg.Decay.SweepBatchSize,
	}, metricsClient)

	lifecycleMgr := lifecycle.NewManager(logger)

	monitor := metrics.NewMonitor(metrics.DefaultRules(), metricsClient)
	collector := metrics.NewCollector(monitor, &processGauges{pool: dbPool, cache: tiered})
	collector.Start(lifecycleMgr, "metrics-sample", cfg.Monitoring.SampleInterval)

	eng := engine.New(engine.Config{
		Store:     db,
		Ingest:    ingestionPipeline,
		Retrieve:  retrievalPipeline,
		Cache:     tiered,
		ANN:       annManager,
		Export:    exportStore,
		Enc:       enc,
		Decay:     decayEngine,
		Lifecycle: lifecycleMgr,
		Monitor:   monitor,
		Metrics:   metricsClient,
		Logger:    logger,
	})
	eng.SetGDPR(security.NewGDPR(db, eng))
	eng.StartBackground(
		cfg.Decay.SweepInterval,
		24*time.Hour,
		24*time.Hour,
		cfg.Decay.ClusterOptimizeInterval,
	)

	logger.Info("memoryd started", map[string]interface{}{"environment": cfg.Environment})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("received shutdown signal", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := eng.Shutdown(shutdownCtx); err != nil {
		logger.Error("engine shutdown error", map[string]interface{}{"error": err.Error()})
	}
	logger.Info("memoryd stopped gracefully", nil)
}

// processGauges samples the process and pool state the alert monitor
// watches. Retrieval latency isn't tracked yet as a rolling percentile,
// so it reports zero (never breaches the slow_retrieval_p99 rule) until
// a histogram-backed quantile estimator is wired in.
type processGauges struct {
	pool  *pool.Pool
	cache *cache.TieredCache
}

func (g *processGauges) MemoryRSSBytes() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return float64(m.Sys)
}

func (g *processGauges) RetrievalP99Seconds() float64 { return 0 }

func (g *processGauges) QueueDepth() float64 {
	return float64(g.pool.Stats().Queued)
}

func (g *processGauges) CacheHitRate() float64 {
	stats := g.cache.Stats()
	var hits, total int64
	for _, s := range stats {
		hits += s.Hits
		total += s.Hits + s.Misses
	}
	if total == 0 {
		return 1
	}
	return float64(hits) / float64(total)
}

// initSecureRandom seeds math/rand from crypto/rand so non-cryptographic
// jitter (retry backoff) isn't predictable across restarts.
func initSecureRandom() {
	max := big.NewInt(int64(1) << 62)
	val, err := rand.Int(rand.Reader, max)
	if err != nil {
		mathrand.Seed(time.Now().UnixNano())
		return
	}
	mathrand.Seed(val.Int64())
}
