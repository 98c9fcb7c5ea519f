package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/subosito/gotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcapi "equiprent-backend/internal/api/grpc"
	"equiprent-backend/internal/api/grpc/interceptor"
	httpapi "equiprent-backend/internal/api/http"
	"equiprent-backend/internal/config"
	"equiprent-backend/internal/idempotency"
	"equiprent-backend/internal/logger"
	"equiprent-backend/internal/metrics"
	"equiprent-backend/internal/pricing"
	"equiprent-backend/internal/repository/postgres"
	"equiprent-backend/internal/security"
	"equiprent-backend/internal/service"
)

func main() {
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// A local .env feeds the environment overlay; it is optional.
	_ = gotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx, *configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting EquipRent availability engine...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress(), "grpc_address", cfg.GetGRPCAddress())
	logger.Info("Database configuration", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database, "user", cfg.Database.User)

	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		logger.Error("Failed to ping database", "error", err)
		log.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	if err := postgres.Migrate(db); err != nil {
		logger.Error("Migrations failed", "error", err)
		log.Fatalf("Migrations failed: %v", err)
	}
	logger.Info("Migrations applied")

	store := postgres.NewStore(db)

	var idem idempotency.Store = idempotency.NewNoopStore()
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error("Failed to ping redis", "error", err, "addr", cfg.Redis.Addr)
			log.Fatalf("Failed to ping redis: %v", err)
		}
		idem = idempotency.NewRedisStore(client, "")
		logger.Info("Idempotent commits enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.IdempotencyTTL)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	var pricingOpts []pricing.Option
	if cfg.Engine.TaxPercent != "" {
		rate, err := decimal.NewFromString(cfg.Engine.TaxPercent)
		if err != nil {
			log.Fatalf("Invalid tax percent %q: %v", cfg.Engine.TaxPercent, err)
		}
		pricingOpts = append(pricingOpts, pricing.WithTaxRates(pricing.FlatTaxRate(rate)))
	}

	bookingSvc := service.NewBookingService(store, pricing.NewEngine(pricingOpts...), idem, m, cfg.Redis.IdempotencyTTL)

	tokenManager := security.NewTokenManager(
		cfg.JWT.Secret,
		time.Duration(cfg.JWT.AccessTokenExpiry)*time.Minute,
		time.Duration(cfg.JWT.RefreshTokenExpiry)*time.Minute,
	)

	router := mux.NewRouter()
	router.HandleFunc("/health", httpapi.HealthHandler).Methods(http.MethodGet)
	if cfg.Metrics.Enabled {
		router.Handle(cfg.Metrics.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	}
	httpapi.RegisterRoutes(router, bookingSvc, tokenManager)

	httpServer := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	var grpcServer *grpc.Server
	if addr := cfg.GetGRPCAddress(); addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			logger.Error("Failed to listen", "error", err, "address", addr)
			log.Fatalf("Failed to listen: %v", err)
		}

		authInterceptor := interceptor.NewAuthInterceptor(tokenManager)
		grpcServer = grpc.NewServer(
			grpc.ChainUnaryInterceptor(authInterceptor.Unary(), interceptor.ErrorUnary()),
		)
		healthServer := health.NewServer()
		healthpb.RegisterHealthServer(grpcServer, healthServer)
		grpcapi.RegisterBookingServer(grpcServer, grpcapi.NewBookingServer(bookingSvc))
		reflection.Register(grpcServer)

		go func() {
			logger.Info("gRPC server listening", "address", addr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("Failed to serve gRPC", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	logger.Info("Graceful shutdown complete")
}
