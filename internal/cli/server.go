package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"audience-response-service/internal/app"
	"audience-response-service/internal/config"
	"audience-response-service/internal/domain"
	"audience-response-service/internal/events"
	"audience-response-service/internal/infra/memory"
	pgstore "audience-response-service/internal/infra/postgres"
	redisinfra "audience-response-service/internal/infra/redis"
	transport "audience-response-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the audience-response server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var store app.ContentStore
	var loader memory.AggregateLoader
	if pool != nil {
		pg := pgstore.NewContentStore(pool)
		store = pg
		loader = pg
	} else {
		mem := memory.NewContentStore()
		seedDemoSession(mem)
		store = mem
		loader = mem
	}

	scoreTTL := config.TTLDuration(cfg.Score.TTL, 10*time.Minute)
	var cache app.AggregateCache
	if redisClient != nil {
		cache = redisinfra.NewScoreCache(redisClient, loader, scoreTTL)
	} else {
		cache = memory.NewScoreCache(loader, scoreTTL)
	}

	bus := events.NewBus()
	scheduler := app.NewTransitionScheduler()
	contentService := app.NewContentService(store, bus, scheduler)
	progressService := app.NewProgressService(store, cache)

	// Coordinator first so evictions happen before transports see the event.
	bus.Subscribe(app.NewCacheCoordinator(cache, bus))
	wsHandler := transport.NewWSHandler(store, contentService, progressService)
	bus.Subscribe(wsHandler)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting audience-response service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedDemoSession provides a minimal session so the no-Postgres mode is usable
// out of the box.
func seedDemoSession(store *memory.ContentStore) {
	session := store.SeedSession(domain.Session{
		ID: "demo", Key: "12345678", OwnerID: "teacher", Name: "Demo session", Active: true,
	})
	_, _ = store.SaveContent(context.Background(), domain.Content{
		SessionID:    session.ID,
		Subject:      "Warm-up",
		Body:         "What is 2 + 2?",
		Variant:      domain.VariantLecture,
		QuestionType: "mc",
		PiRound:      1,
		Active:       true,
		MaxValue:     1,
	})
}
