package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/agent-handoff/internal/api"
	"github.com/Rrens/agent-handoff/internal/api/handler"
	customMiddleware "github.com/Rrens/agent-handoff/internal/api/middleware"
	"github.com/Rrens/agent-handoff/internal/arbiter"
	"github.com/Rrens/agent-handoff/internal/config"
	"github.com/Rrens/agent-handoff/internal/domain"
	"github.com/Rrens/agent-handoff/internal/events"
	"github.com/Rrens/agent-handoff/internal/hub"
	"github.com/Rrens/agent-handoff/internal/logger"
	"github.com/Rrens/agent-handoff/internal/repository/postgres"
	"github.com/Rrens/agent-handoff/internal/repository/redis"
	"github.com/Rrens/agent-handoff/internal/repository/sqlite"
	"github.com/Rrens/agent-handoff/internal/security"
	"github.com/Rrens/agent-handoff/internal/service"
)

const shutdownTimeout = 15 * time.Second

// store is the persistence the services run on
type store struct {
	tickets  domain.TicketRepository
	messages domain.MessageRepository
	agents   domain.AgentRepository
	pinger   handler.Pinger
	close    func()
}

func main() {
	// Load .env file - try multiple locations
	for _, p := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(p); err == nil {
			fmt.Printf("Loaded .env from: %s\n", p)
			break
		}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logCloser, err := logger.Setup(cfg.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logging")
	}
	defer logCloser.Close()

	if cfg.Auth.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("driver", cfg.Database.Driver).
		Msg("Starting agent handoff hub")

	ctx := context.Background()

	st, err := openStore(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer st.close()

	ready := map[string]handler.Pinger{"database": st.pinger}

	// Claims are arbitrated in Redis when it is enabled, so several hub
	// replicas agree on one holder.
	var (
		arb     arbiter.Arbiter = arbiter.NewMemory(cfg.Hub.ClaimTTL)
		limiter customMiddleware.Limiter
	)
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()

		arb = redis.NewClaimStore(redisClient, cfg.Hub.ClaimTTL)
		limiter = redis.NewRateLimiter(redisClient, cfg.Security.RateLimit.RequestsPerMinute, cfg.Security.RateLimit.Burst)
		ready["redis"] = redisClient
	}

	publisher := events.NewKafkaPublisher(events.ParseBrokers(cfg.Kafka.Brokers), cfg.Kafka.Topic)
	defer publisher.Close()
	if cfg.Kafka.Enabled() {
		log.Info().Str("topic", cfg.Kafka.Topic).Msg("Publishing ticket events to Kafka")
	}

	jwtManager := security.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)

	h := hub.New(cfg.Hub)
	ticketService := service.NewTicketService(st.tickets, st.messages, arb, publisher, h, cfg.Hub.HistoryLimit)

	router := api.NewRouter(api.Dependencies{
		Config:      cfg,
		JWTManager:  jwtManager,
		Auth:        service.NewAuthService(st.agents, jwtManager),
		Agents:      service.NewAgentService(st.agents, h),
		Tickets:     ticketService,
		Sockets:     hub.NewServer(h, ticketService),
		RateLimiter: limiter,
		Ready:       ready,
	})

	// WriteTimeout is enforced per route; sockets clear their deadlines.
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		IdleTimeout:       2 * cfg.Server.ReadTimeout,
	}

	go func() {
		log.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Int("agents", h.ConnectedAgents()).Msg("Server stopped")
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (*store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		if err := postgres.RunMigrations(cfg.DSN()); err != nil {
			return nil, err
		}
		db, err := postgres.NewDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &store{
			tickets:  postgres.NewTicketRepository(db.Pool),
			messages: postgres.NewMessageRepository(db.Pool),
			agents:   postgres.NewAgentRepository(db.Pool),
			pinger:   db,
			close:    db.Close,
		}, nil

	case config.DriverSQLite, "":
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &store{
			tickets:  db.Tickets(),
			messages: db.Messages(),
			agents:   db.Agents(),
			pinger:   db,
			close:    func() { db.Close() },
		}, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}
