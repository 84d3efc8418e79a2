package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	soauth "github.com/pilab-dev/shadow-oauth"
	"github.com/pilab-dev/shadow-oauth/cache"
	rediscache "github.com/pilab-dev/shadow-oauth/cache/redis"
	"github.com/pilab-dev/shadow-oauth/config"
	"github.com/pilab-dev/shadow-oauth/domain"
	"github.com/pilab-dev/shadow-oauth/internal/auth"
	"github.com/pilab-dev/shadow-oauth/internal/federation"
	"github.com/pilab-dev/shadow-oauth/internal/metrics"
	"github.com/pilab-dev/shadow-oauth/internal/ratelimit"
	"github.com/pilab-dev/shadow-oauth/memory"
	"github.com/pilab-dev/shadow-oauth/mongodb"
)

const (
	redisKeyPrefix = "soauth"
	// maxThrottleEntries bounds the number of remote addresses tracked.
	maxThrottleEntries = 100_000
)

// Runtime is an engine together with the resources it was built on.
type Runtime struct {
	Config    *config.Config
	Engine    *soauth.Engine
	Directory *auth.StaticDirectory
	Registry  *prometheus.Registry
	// TokenCache is the access token cache the engine reads through.
	TokenCache cache.TokenStore

	closers []func(ctx context.Context) error
}

// Close releases storage connections, caches and the throttle.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (rt *Runtime) onClose(fn func(ctx context.Context) error) {
	rt.closers = append(rt.closers, fn)
}

// Build wires storage, cache, users and federated strategies from cfg into
// an engine.
func Build(ctx context.Context, cfg *config.Config) (_ *Runtime, err error) {
	octx, err := cfg.OAuthContext()
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Config: cfg, Registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
		}
	}()

	rt.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.InitCustomMetrics(rt.Registry)

	hasher := auth.NewBcryptPasswordHasher(bcrypt.DefaultCost)
	rt.Directory = auth.NewStaticDirectory(hasher, cfg.Users)

	opts := soauth.Options{
		OAuthContext:  octx,
		Hasher:        hasher,
		Authenticate:  rt.Directory.Authenticate,
		Claims:        rt.Directory.Claims,
		PurgeInterval: cfg.Purge.Interval,
	}

	if err := rt.storage(ctx, cfg.Storage, &opts); err != nil {
		return nil, err
	}
	if err := rt.cache(ctx, cfg.Cache, &opts); err != nil {
		return nil, err
	}
	rt.TokenCache = opts.TokenCache

	if cfg.Storage.Backend != config.BackendMemory && cfg.Cache.Backend == config.BackendMemory {
		log.Warn().Dur("token_ttl", cfg.Cache.TokenTTL).
			Msg("token cache is per process; with several replicas a revocation reaches the others only after token_ttl")
	}

	if cfg.Throttle.PerSecond > 0 {
		limiter := ratelimit.New(cfg.Throttle.PerSecond, cfg.Throttle.Burst, cfg.Throttle.Idle, maxThrottleEntries)
		rt.onClose(func(context.Context) error { limiter.Stop(); return nil })
		opts.Throttle = limiter
	}

	opts.Strategies = Strategies(cfg.Strategies, rt.Directory)

	rt.Engine, err = soauth.New(opts)
	if err != nil {
		return nil, err
	}

	return rt, nil
}

func (rt *Runtime) storage(ctx context.Context, cfg config.StorageConfig, opts *soauth.Options) error {
	switch cfg.Backend {
	case config.BackendMongoDB:
		store, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return err
		}
		rt.onClose(store.Close)

		opts.Clients, opts.Scopes = store.Clients, store.Scopes
		opts.AuthCodes, opts.Tokens = store.AuthCodes, store.Tokens
	default:
		opts.Clients, opts.Scopes = memory.NewClientRepository(), memory.NewScopeRepository()
		opts.AuthCodes, opts.Tokens = memory.NewAuthCodeRepository(), memory.NewTokenRepository()
	}

	return nil
}

func (rt *Runtime) cache(ctx context.Context, cfg config.CacheConfig, opts *soauth.Options) error {
	switch cfg.Backend {
	case config.BackendRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		rt.onClose(func(context.Context) error { return client.Close() })

		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to ping redis at %s: %w", cfg.RedisAddr, err)
		}

		opts.Flows = rediscache.NewFlowStore(client, redisKeyPrefix, cfg.FlowTTL)
		opts.TokenCache = rediscache.NewTokenStore(client, redisKeyPrefix, cfg.TokenTTL)
	default:
		flows := cache.NewMemoryFlowStore(cfg.FlowTTL)
		tokens := cache.NewMemoryTokenStore(cfg.TokenTTL)
		rt.onClose(func(context.Context) error { return flows.Close() })
		rt.onClose(func(context.Context) error { return tokens.Close() })

		opts.Flows, opts.TokenCache = flows, tokens
	}

	return nil
}

// Strategies builds the federated strategies of cfgs. Provider accounts are
// mapped to local users through the directory.
func Strategies(cfgs []config.StrategyConfig, dir *auth.StaticDirectory) []*federation.Strategy {
	strategies := make([]*federation.Strategy, 0, len(cfgs))

	for _, sc := range cfgs {
		resolve := func(ctx context.Context, p *federation.Profile) (*domain.Subject, error) {
			return dir.LookupFederated(ctx, sc.ID, p.ID)
		}

		switch sc.Provider {
		case "github":
			strategies = append(strategies, federation.NewGitHubStrategy(sc.ID, sc.ClientID, sc.ClientSecret,
				sc.RedirectURL, sc.Scopes, federation.LookupProfile(federation.FetchGitHubProfile, resolve)))
		case "google":
			strategies = append(strategies, federation.NewGoogleStrategy(sc.ID, sc.ClientID, sc.ClientSecret,
				sc.RedirectURL, sc.Scopes, federation.LookupProfile(federation.FetchGoogleProfile, resolve)))
		}
	}

	return strategies
}
