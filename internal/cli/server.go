package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/config"
	"trivia-live-service/internal/domain"
	"trivia-live-service/internal/infra/memory"
	pgloader "trivia-live-service/internal/infra/postgres"
	infraredis "trivia-live-service/internal/infra/redis"
	transport "trivia-live-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia session server",
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
	setupLogging(cfg.Log.Level, cfg.Log.Pretty)

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

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgloader.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = infraredis.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	archiveTTL := config.TTLDuration(cfg.Redis.TTL, time.Hour)
	var archive app.LeaderboardArchive
	if redisClient != nil {
		archive = infraredis.NewLeaderboardArchive(redisClient, archiveTTL)
	} else {
		archive = memory.NewLeaderboardArchive()
	}

	settings := gameSettings(cfg)
	registry := app.NewRegistry(clockwork.NewRealClock(), settings)
	service := app.NewGameService(registry, quizRepo, archive)
	gateway := transport.NewGatewayHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", gateway.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting trivia session server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func gameSettings(cfg config.Config) app.Settings {
	settings := app.DefaultSettings()
	settings.QuestionWindow = config.TTLDuration(cfg.Game.QuestionWindow, settings.QuestionWindow)
	settings.GraceWindow = config.TTLDuration(cfg.Game.GraceWindow, settings.GraceWindow)
	settings.PinCooldown = config.TTLDuration(cfg.Game.PinCooldown, settings.PinCooldown)
	if cfg.Game.MaxPoints > 0 {
		settings.MaxPoints = cfg.Game.MaxPoints
	}
	if cfg.Game.PinAttempts > 0 {
		settings.PinAttempts = cfg.Game.PinAttempts
	}
	return settings
}

// sampleQuizzes provides a minimal quiz set for running without Postgres.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID: "quiz-1",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3", Correct: false},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5", Correct: false},
					},
				},
				{
					ID:     "q2",
					Prompt: "Which of these are prime?",
					Options: []domain.Option{
						{ID: "o1", Text: "2", Correct: true},
						{ID: "o2", Text: "4", Correct: false},
						{ID: "o3", Text: "7", Correct: true},
						{ID: "o4", Text: "9", Correct: false},
					},
				},
			},
		},
	}
}
