package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	s3blob "github.com/barterloop/barterloop/internal/blob/s3"
	"github.com/barterloop/barterloop/internal/cache/redis"
	"github.com/barterloop/barterloop/internal/config"
	"github.com/barterloop/barterloop/internal/domain"
	"github.com/barterloop/barterloop/internal/service"
	"github.com/barterloop/barterloop/internal/store/postgres"
	"github.com/barterloop/barterloop/internal/trust"
	"github.com/barterloop/barterloop/internal/txn"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	PG *postgres.Client

	// Stores
	TradeStore  domain.TradeStore
	ObjectStore domain.ObjectStore
	UserStore   domain.UserStore
	ProofStore  domain.ProofStore
	AuditStore  domain.AuditStore

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader

	// Engine layers
	Executor    *txn.Executor
	TrustEngine *trust.Engine

	// Services
	Trades *service.TradeService
	Proofs *service.ProofService
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)
	deps.PG = pgClient

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.TradeStore = postgres.NewTradeStore(pool)
	deps.ObjectStore = postgres.NewObjectStore(pool)
	deps.UserStore = postgres.NewUserStore(pool)
	deps.ProofStore = postgres.NewProofStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	trustCache := redis.NewTrustCache(redisClient, cfg.Trust.CacheTTL.Duration)

	// --- S3 blob storage ---
	s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       cfg.S3.Endpoint,
		Region:         cfg.S3.Region,
		Bucket:         cfg.S3.Bucket,
		AccessKey:      cfg.S3.AccessKey,
		SecretKey:      cfg.S3.SecretKey,
		UseSSL:         cfg.S3.UseSSL,
		ForcePathStyle: cfg.S3.ForcePathStyle,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: s3: %w", err)
	}
	closers = append(closers, func() { _ = s3Client.Close() })

	deps.BlobWriter = s3blob.NewWriter(s3Client)
	deps.BlobReader = s3blob.NewReader(s3Client)

	// --- Transaction executor ---
	deps.Executor = txn.NewExecutor(pool, txn.Options{
		MaxRetries: cfg.Txn.MaxRetries,
		RetryDelay: cfg.Txn.RetryDelay.Duration,
	}, logger)

	// --- Trust engine ---
	deps.TrustEngine = trust.NewEngine(deps.UserStore, trustCache, trust.Config{
		CacheTTL: cfg.Trust.CacheTTL.Duration,
	}, logger)

	// --- Services ---
	escrowAmount, err := decimal.NewFromString(cfg.Escrow.BaseAmount)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: escrow base_amount %q: %w", cfg.Escrow.BaseAmount, err)
	}

	deps.Trades = service.NewTradeService(
		deps.Executor,
		deps.TradeStore,
		deps.ObjectStore,
		deps.UserStore,
		deps.TrustEngine,
		deps.AuditStore,
		service.EscrowConfig{
			BaseAmount:   escrowAmount,
			HoldDuration: cfg.Escrow.HoldDuration.Duration,
		},
		logger,
	)
	deps.Proofs = service.NewProofService(
		deps.TradeStore,
		deps.ProofStore,
		deps.BlobWriter,
		deps.BlobReader,
		logger,
	)

	return deps, cleanup, nil
}
