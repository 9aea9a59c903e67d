package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"stylegen/internal/adapter/repo"
	"stylegen/internal/domain"
	"stylegen/internal/generation"
	"stylegen/internal/http/handlers"
	httpapi "stylegen/internal/http/httpapi"
	"stylegen/internal/infra"
	"stylegen/internal/infra/credentials"
	"stylegen/internal/infra/geoip"
	"stylegen/internal/providers"
	"stylegen/internal/providers/azure"
	"stylegen/internal/providers/gemini"
	"stylegen/internal/providers/pollinations"
	"stylegen/internal/providers/replicate"
	"stylegen/internal/realtime"
	"stylegen/internal/storage"
	"stylegen/internal/templates"
)

func main() {
	// Muat .env (opsional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// DB pool hanya dibuka kalau ada komponen yang butuh Postgres
	var sqlExec infra.SQLExecutor
	if cfg.DatabaseURL != "" {
		var pool *pgxpool.Pool
		pool, err = infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		sqlExec = infra.NewSQLRunner(pool, logger)
	}

	var store domain.GenerationStore
	switch cfg.StoreBackend {
	case infra.StoreBackendSupabase:
		store, err = repo.NewSupabaseGenerationRepository(cfg.SupabaseURL, cfg.SupabaseServiceKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init supabase store")
		}
	default:
		store = repo.NewGenerationRepository(sqlExec)
	}

	var source domain.TemplateSource
	switch cfg.TemplateSource {
	case infra.TemplateSourceFile:
		catalog, err := templates.LoadCatalogFile(cfg.TemplateCatalogPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load template catalog")
		}
		source = templates.NewFileSource(catalog)
		logger.Info().Int("templates", len(catalog.Templates)).Msg("template catalog loaded")
	default:
		source = repo.NewTemplateRepository(sqlExec)
	}
	registry := templates.NewRegistry(source, cfg.TemplateCacheTTL, &logger)

	set := buildProviders(ctx, cfg, sqlExec, &logger)
	if len(set.Kinds()) == 0 {
		logger.Warn().Msg("no provider configured; every submission will fail")
	}
	logger.Info().Strs("providers", set.Kinds()).Msg("providers ready")

	// Status fan-out: Redis kalau tersedia, selain itu hub lokal saja
	hub := realtime.NewHub(&logger)
	var publisher domain.StatusPublisher = hub
	var bus *realtime.RedisBus
	if cfg.RedisAddr != "" {
		rdb, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rdb.Close()
		bus, err = realtime.NewRedisBus(rdb, cfg.RedisChannel, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init status bus")
		}
		publisher = bus
	}

	var images generation.ImageSaver
	if cfg.StoragePath != "" {
		fs, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init storage")
		}
		images = fs
	}

	geo, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer geo.Close()

	svc := generation.NewService(generation.Options{
		Templates: registry,
		Store:     store,
		Providers: set,
		Publisher: publisher,
		Images:    images,
		Callback:  cfg.CallbackURL,
		Logger:    &logger,
	})
	app := handlers.NewApp(handlers.Deps{
		Generations: svc,
		Webhooks:    generation.NewReceiver(store, publisher, &logger),
		Store:       store,
		Sockets: realtime.NewSocketHandler(hub, store, realtime.SocketOptions{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			Logger:         &logger,
		}),
		Logger: &logger,
	})

	var lookup func(ip string) (string, error)
	if geo != nil {
		lookup = geo.CountryCode
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		CORSOrigins:     cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		StaticDir:       cfg.StoragePath,
		CountryLookup:   lookup,
		Logger:          logger,
	})
	server := infra.NewHTTPServer(cfg, router)

	g, gctx := errgroup.WithContext(ctx)
	if bus != nil {
		if err := bus.StartForwarder(gctx, hub.Deliver); err != nil {
			logger.Fatal().Err(err).Msg("failed to subscribe status channel")
		}
		logger.Info().Str("channel", bus.Channel()).Msg("status bus forwarding")
	}
	g.Go(func() error {
		logger.Info().Msgf("API listening on %s", server.Addr())
		return server.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("server stopped")
}

// buildProviders registers every adapter whose credentials are available.
// Keys from the environment win over tokens stored in integration_tokens.
func buildProviders(ctx context.Context, cfg *infra.Config, sqlExec infra.SQLExecutor, logger *infra.Logger) *providers.Set {
	var creds *credentials.Store
	if sqlExec != nil {
		creds = credentials.NewStore(sqlExec)
	}
	resolve := func(provider, fromEnv string) string {
		key, err := creds.Resolve(ctx, provider, fromEnv)
		if err != nil {
			logger.Warn().Err(err).Str("provider", provider).Msg("credential lookup failed")
			return fromEnv
		}
		return key
	}

	set := providers.NewSet()

	if key := resolve(credentials.ProviderAzure, cfg.AzureAPIKey); key != "" && cfg.AzureEndpoint != "" {
		set.AddBlocking(domain.ProviderAzure, azure.NewClient(azure.Options{
			Endpoint:     cfg.AzureEndpoint,
			APIKey:       key,
			PollInterval: cfg.PollInterval,
			MaxAttempts:  cfg.PollMaxAttempts,
			Limiter:      providers.NewLimiter(cfg.ProviderRatePerMin),
			Logger:       logger,
		}))
	}

	if key := resolve(credentials.ProviderGemini, cfg.GeminiAPIKey); key != "" {
		client, err := gemini.NewClient(ctx, gemini.Options{
			APIKey:  key,
			Model:   cfg.GeminiModel,
			Limiter: providers.NewLimiter(cfg.ProviderRatePerMin),
			Logger:  logger,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("gemini disabled")
		} else {
			set.AddBlocking(domain.ProviderGemini, client)
		}
	}

	if key := resolve(credentials.ProviderReplicate, cfg.ReplicateAPIToken); key != "" {
		set.AddNonBlocking(domain.ProviderReplicate, replicate.NewClient(replicate.Options{
			BaseURL:  cfg.ReplicateBaseURL,
			APIToken: key,
			Limiter:  providers.NewLimiter(cfg.ProviderRatePerMin),
			Logger:   logger,
		}))
	}

	// Pollinations tidak butuh key
	set.AddNonBlocking(domain.ProviderPollinations, pollinations.NewClient(pollinations.Options{
		BaseURL: cfg.PollinationsBaseURL,
		Limiter: providers.NewLimiter(cfg.ProviderRatePerMin),
		Logger:  logger,
	}))

	return set
}
