package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trivia-solo-service/internal/app"
	"trivia-solo-service/internal/config"
	"trivia-solo-service/internal/domain"
	"trivia-solo-service/internal/infra/memory"
	openaigen "trivia-solo-service/internal/infra/openai"
	pgstore "trivia-solo-service/internal/infra/postgres"
	redisstore "trivia-solo-service/internal/infra/redis"
	"trivia-solo-service/internal/infra/triviaapi"
	"trivia-solo-service/internal/logger"
	"trivia-solo-service/internal/metrics"
	transport "trivia-solo-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia server",
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
	log, err := logger.New(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()
	metrics.Init()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
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
		defer redisClient.Close()
	}
	redisTTL := config.Duration(cfg.Redis.TTL, 10*time.Minute)
	window := config.Duration(cfg.Limits.Window, 30*24*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var ledger app.UsageLedger = memory.NewUsageLedger(window)
	if redisClient != nil {
		ledger = redisstore.NewUsageLedger(redisClient, window)
	}

	var triviaStore app.TriviaStore = memory.NewTriviaStore()
	if pool != nil {
		triviaStore = pgstore.NewTriviaStore(pool)
	}

	var generator app.TriviaGenerator = memory.NewStaticTriviaGenerator(sampleTopics())
	if cfg.Generator.OpenAIKey != "" {
		generator = openaigen.NewTriviaGenerator(cfg.Generator.OpenAIKey, cfg.Generator.Model, log)
	}

	triviaService := app.NewTriviaService(generator, ledger, triviaStore,
		app.Limits{Anon: cfg.Limits.Anon, Registered: cfg.Limits.Registered, MaxQuestions: cfg.Limits.MaxQuestions}, log)

	// games either call this process's generation API or a remote one
	backends := app.LocalBackendFactory(triviaService)
	if cfg.Generator.Endpoint != "" {
		backends = triviaapi.Factory(cfg.Generator.Endpoint, &http.Client{Timeout: 2 * time.Minute})
		log.Info("using remote generation service", zap.String("endpoint", cfg.Generator.Endpoint))
	}

	engineCfg := app.EngineConfig{
		StartCountdown:  *cfg.Quiz.StartCountdown,
		Unit:            config.Duration(cfg.Quiz.Unit, time.Second),
		AnimationBuffer: config.Duration(cfg.Quiz.AnimationBuffer, 500*time.Millisecond),
	}
	factory := app.NewGameFactory(backends, app.RealScheduler(), engineCfg, log)

	var games app.GameRepository
	if redisClient != nil {
		games = redisstore.NewGameStore(redisClient, redisTTL, factory)
	} else {
		games = memory.NewGameStore(factory)
	}

	if cfg.Session.Secret == "" {
		return fmt.Errorf("session secret not configured")
	}
	gate := transport.NewIdentityGate(cfg.Session.Secret)
	wsHandler := transport.NewWSHandler(app.NewGameService(games), gate, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.Handler())
	transport.NewAPIHandler(triviaService, gate, cfg.Limits.PerMinute, log).Register(mux)
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	// generation can run long, so no write timeout
	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting trivia service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleTopics seeds the static generator used when no OpenAI key is configured.
func sampleTopics() map[string][]domain.Question {
	return map[string][]domain.Question{
		"space": {
			{
				Text: "Which planet is known as the Red Planet?",
				Answers: []domain.Answer{
					{Text: "Venus"},
					{Text: "Mars", IsCorrect: true},
					{Text: "Jupiter"},
					{Text: "Mercury"},
				},
			},
			{
				Text: "What is the closest star to Earth?",
				Answers: []domain.Answer{
					{Text: "The Sun", IsCorrect: true},
					{Text: "Proxima Centauri"},
					{Text: "Sirius"},
				},
			},
		},
	}
}
