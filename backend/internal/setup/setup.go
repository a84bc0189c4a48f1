package setup

import (
	"context"
	"fmt"

	"github.com/itchan-dev/ideamarket/backend/internal/handler"
	"github.com/itchan-dev/ideamarket/backend/internal/service"
	"github.com/itchan-dev/ideamarket/backend/internal/storage/pg"
	"github.com/itchan-dev/ideamarket/shared/blacklist"
	"github.com/itchan-dev/ideamarket/shared/config"
	"github.com/itchan-dev/ideamarket/shared/credential"
	"github.com/itchan-dev/ideamarket/shared/jwt"
	"github.com/itchan-dev/ideamarket/shared/logger"
	mw "github.com/itchan-dev/ideamarket/shared/middleware"
	"github.com/itchan-dev/ideamarket/shared/middleware/ratelimiter"
	sharedpg "github.com/itchan-dev/ideamarket/shared/storage/pg"
	"github.com/redis/go-redis/v9"
)

// Stores are the persistence backends the services run on.
type Stores struct {
	Users     service.UserStorage
	Blacklist blacklist.Storage
	RateLimit ratelimiter.Store
	Health    handler.HealthChecker
}

// Dependencies struct to hold all initialized dependencies.
type Dependencies struct {
	Config         *config.Config
	Storage        *pg.Storage
	Redis          redis.UniversalClient
	Blacklist      *blacklist.Blacklist
	Auth           *service.Auth
	Handler        *handler.Handler
	AuthMiddleware *mw.Auth
	RateLimit      *mw.RateLimit
	CSRF           *mw.CSRF
}

// SetupDependencies connects to Postgres (and Redis when configured) and
// wires the services on top.
func SetupDependencies(ctx context.Context, cfg *config.Config, connCfg sharedpg.ConnectionConfig) (*Dependencies, error) {
	storage, err := pg.New(ctx, cfg.Pg(), connCfg)
	if err != nil {
		return nil, err
	}

	var rdb redis.UniversalClient
	var store ratelimiter.Store = ratelimiter.NewMemoryStore()
	if cfg.Public.RateLimit.Backend == config.RateLimitRedis {
		rdb, err = connectRedis(ctx, cfg.Redis())
		if err != nil {
			storage.Cleanup()
			return nil, err
		}
		store = ratelimiter.NewRedisStore(rdb, cfg.Public.RateLimit.RedisPrefix)
	}

	deps, err := Build(cfg, Stores{Users: storage, Blacklist: storage, RateLimit: store, Health: storage})
	if err != nil {
		storage.Cleanup()
		if rdb != nil {
			rdb.Close()
		}
		return nil, err
	}
	deps.Storage = storage
	deps.Redis = rdb
	return deps, nil
}

// Build wires services, handlers and middleware over the given stores.
func Build(cfg *config.Config, stores Stores) (*Dependencies, error) {
	hasher, err := credential.NewRegistry(cfg.Public.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("credential registry: %w", err)
	}

	tokenService := jwt.New(cfg.JwtAccessKey(), cfg.JwtRefreshKey())
	bl := blacklist.New(stores.Blacklist)
	tokens := service.NewTokens(tokenService, bl, stores.Users)
	lockout := service.NewLockout(stores.RateLimit, cfg.Public.Lockout)
	auth := service.NewAuth(stores.Users, tokens, bl, hasher, lockout)

	return &Dependencies{
		Config:         cfg,
		Blacklist:      bl,
		Auth:           auth,
		Handler:        handler.New(auth, cfg, stores.Health),
		AuthMiddleware: mw.NewAuth(tokenService, bl),
		RateLimit:      mw.NewRateLimit(ratelimiter.New(stores.RateLimit)),
		CSRF:           mw.NewCSRF(cfg.Public.SecureCookies),
	}, nil
}

func connectRedis(ctx context.Context, cfg config.Redis) (redis.UniversalClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	logger.Log.Info("connected to redis", "addr", cfg.Addr)
	return rdb, nil
}

// StartBackground launches the blacklist sweeper.
func (d *Dependencies) StartBackground(ctx context.Context) {
	d.Blacklist.Start(ctx, d.Config.Public.BlacklistSweepInterval)
}

// Close stops background work and releases connections.
func (d *Dependencies) Close() error {
	d.Blacklist.Stop()
	var firstErr error
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			firstErr = fmt.Errorf("close redis: %w", err)
		}
	}
	if d.Storage != nil {
		if err := d.Storage.Cleanup(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close storage: %w", err)
		}
	}
	return firstErr
}
