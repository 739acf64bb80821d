package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/allocatorhq/compactd/internal/blob/s3"
	redisc "github.com/allocatorhq/compactd/internal/cache/redis"
	"github.com/allocatorhq/compactd/internal/allocation"
	"github.com/allocatorhq/compactd/internal/balance"
	"github.com/allocatorhq/compactd/internal/config"
	"github.com/allocatorhq/compactd/internal/crypto"
	"github.com/allocatorhq/compactd/internal/domain"
	"github.com/allocatorhq/compactd/internal/indexer"
	"github.com/allocatorhq/compactd/internal/nonce"
	"github.com/allocatorhq/compactd/internal/notify"
	"github.com/allocatorhq/compactd/internal/server"
	"github.com/allocatorhq/compactd/internal/server/handler"
	"github.com/allocatorhq/compactd/internal/store/postgres"
	"github.com/allocatorhq/compactd/internal/validator"
)

// verifyingContract is the protocol's fixed EIP-712 verifying contract
// address (SPEC_FULL.md §4.2), the same across every supported chain.
const verifyingContract = "0x00000000000000171ede64904551eeDF3C6C9788"

// Dependencies bundles every constructed component the application needs to
// serve traffic. It is built by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	Signer     *crypto.Signer
	ChainCache *indexer.ChainCache
	Server     *server.Server
	Notifier   *notify.Notifier
	Archiver   *s3blob.ArchiveImpl // nil when S3 archival is not configured
}

// Wire constructs every concrete dependency from cfg and returns them
// together with a cleanup function that releases acquired resources
// (Postgres pool, Redis connection, S3 client) on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// --- Signer ---
	rawKey, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Signer.PrivateKey,
		EncryptedKeyPath: cfg.Signer.EncryptedKeyPath,
		KeyPassword:      cfg.Signer.KeyPassword,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: load signer key: %w", err)
	}
	signer, err := crypto.NewSigner(rawKey, cfg.Signer.AllocatorAddress, cfg.Signer.SkipSigningVerification)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: signer: %w", err)
	}
	allocatorAddress := domain.NormalizeAddress(signer.Address().Hex())

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

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	compactStore := postgres.NewCompactStore(pool)
	nonceStore := postgres.NewNonceStore(pool)
	auditStore := postgres.NewAuditStore(pool)

	// --- Redis (optional; falls back to the in-memory LockManager and
	// disables rate limiting when unset, per SPEC_FULL.md §9) ---
	var (
		lockManager domain.LockManager = allocation.NewLocalLockManager()
		rateLimiter domain.RateLimiter
	)
	if cfg.Redis.Addr != "" {
		redisClient, err := redisc.New(ctx, redisc.ClientConfig{
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

		lockManager = allocation.NewRedisLockManager(redisc.NewLockManager(redisClient))
		rateLimiter = redisc.NewRateLimiter(redisClient)
	}

	// --- Indexer ---
	indexerClient := indexer.NewClient(cfg.Indexer.URL, cfg.Indexer.APIKey)
	chainCache := indexer.NewChainCache(indexerClient, allocatorAddress)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Core domain services ---
	hashBuilder := crypto.NewHashBuilder(verifyingContract)
	v := validator.New()
	nonceSvc := nonce.New(nonceStore, indexerClient)
	balanceEngine := balance.New(indexerClient, chainCache, compactStore)

	allocationEngine := allocation.New(allocation.Config{
		Validator:        v,
		HashBuilder:      hashBuilder,
		NonceService:     nonceSvc,
		Balance:          balanceEngine,
		Signer:           signer,
		Store:            compactStore,
		Locks:            lockManager,
		Registry:         indexerClient,
		Audit:            auditStore,
		Notifier:         notifier,
		Logger:           logger,
		AllocatorAddress: allocatorAddress,
	})

	// --- S3 archival (optional) ---
	var (
		archiveReader *s3blob.Reader
		archiver      *s3blob.ArchiveImpl
	)
	if cfg.S3.Bucket != "" {
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

		archiveReader = s3blob.NewReader(s3Client)
		archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), compactStore, auditStore)
	}

	// --- HTTP handlers + server ---
	var admin *handler.AdminHandler
	if archiveReader != nil {
		admin = handler.NewAdminHandler(chainCache, archiveReader, logger)
	} else {
		admin = handler.NewAdminHandler(chainCache, nil, logger)
	}

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(logger),
		Nonce:   handler.NewNonceHandler(nonceSvc, logger),
		Compact: handler.NewCompactHandler(allocationEngine, v, compactStore, logger),
		Balance: handler.NewBalanceHandler(balanceEngine, indexerClient, allocatorAddress, logger),
		Admin:   admin,
	}

	srv := server.NewServer(server.Config{
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
		APIKey:      cfg.Server.APIKey,
	}, handlers, rateLimiter, logger)

	return &Dependencies{
		Signer:     signer,
		ChainCache: chainCache,
		Server:     srv,
		Notifier:   notifier,
		Archiver:   archiver,
	}, cleanup, nil
}
