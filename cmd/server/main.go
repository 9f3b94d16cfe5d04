// Copyright 2026 The TrustFabric Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/trustfabric/trustfabric/internal/audit"
	"github.com/trustfabric/trustfabric/internal/authz"
	"github.com/trustfabric/trustfabric/internal/cache"
	"github.com/trustfabric/trustfabric/internal/config"
	"github.com/trustfabric/trustfabric/internal/crypto"
	"github.com/trustfabric/trustfabric/internal/identity"
	"github.com/trustfabric/trustfabric/internal/oauthx"
	"github.com/trustfabric/trustfabric/internal/observability/logger"
	"github.com/trustfabric/trustfabric/internal/observability/metrics"
	"github.com/trustfabric/trustfabric/internal/observability/tracing"
	"github.com/trustfabric/trustfabric/internal/ratelimit"
	"github.com/trustfabric/trustfabric/internal/store/postgres"
	"github.com/trustfabric/trustfabric/internal/svcaccount"
	"github.com/trustfabric/trustfabric/internal/tenant"
	"github.com/trustfabric/trustfabric/internal/token"
	"github.com/trustfabric/trustfabric/internal/transport/grpcx"
	transportHTTP "github.com/trustfabric/trustfabric/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting trustfabric identity plane")

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(cfg); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	ctx := context.Background()
	clock := clockwork.NewRealClock()

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	defer tracer.Shutdown(ctx)

	// Initialize database
	pool, err := postgres.Connect(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MinOpenConns,
	})
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer pool.Close()
	slog.Info("connected to database")
	st := postgres.New(pool)

	// Initialize the blacklist/nonce store
	cacheStore, err := cache.NewRedis(ctx, cfg.Redis.URL)
	if err != nil {
		slog.Error("failed to connect to redis", logger.Error(err))
		os.Exit(1)
	}
	defer cacheStore.Close()
	slog.Info("connected to redis")

	// Load signing keys
	tokens, err := token.Load(cfg.JWT.PrivateKeyPath, cfg.JWT.PublicKeyPath, token.Options{
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		AccessTTL:  cfg.JWT.AccessExpiry,
		RefreshTTL: cfg.JWT.RefreshExpiry,
		Clock:      clock,
	})
	if err != nil {
		slog.Error("failed to load signing keys", logger.Error(err))
		os.Exit(1)
	}

	// Initialize helpers
	auditLogger := audit.New(st)
	passwordHasher := crypto.NewPasswordHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)
	secretBox := crypto.NewSecretBox(cfg.Security.EncryptionKey)

	var google *oauthx.GoogleProvider
	if cfg.Google.Enabled {
		google = oauthx.NewGoogle(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURI)
		slog.Info("social login enabled")
	}

	// Initialize services
	identityService := identity.NewService(
		st, cacheStore, tokens, passwordHasher, nil, google, auditLogger, clock,
		identity.Config{
			LockoutMaxAttempts: cfg.Security.LockoutMaxAttempts,
			LockoutDuration:    cfg.Security.LockoutDuration,
		},
	)
	tenantService := tenant.NewService(st, auditLogger, clock)
	serviceAccounts := svcaccount.NewService(st, secretBox, passwordHasher, tokens, auditLogger, clock)
	engine := authz.New(st, tokens, cacheStore, cfg.Security.TrustInternalServices, clock)

	m := metrics.New("trustfabric")

	// Rate limiters
	limits := transportHTTP.NewRateLimits(
		ratelimit.Bucket{Attempts: cfg.RateLimit.Login.Attempts, Window: cfg.RateLimit.Login.Window},
		ratelimit.Bucket{Attempts: cfg.RateLimit.Register.Attempts, Window: cfg.RateLimit.Register.Window},
		ratelimit.Bucket{Attempts: cfg.RateLimit.PasswordReset.Attempts, Window: cfg.RateLimit.PasswordReset.Window},
	)

	// Initialize HTTP handler
	handler := transportHTTP.NewHandler(
		identityService,
		tenantService,
		serviceAccounts,
		engine,
		tokens,
		st,
		cacheStore,
		m,
		auditLogger,
		clock,
		transportHTTP.Config{
			AllowedOrigins:    cfg.Security.AllowedOrigins,
			RequireSignatures: cfg.Security.RequireSignatures,
			AdminAPIKey:       cfg.Security.AdminAPIKey,
			RequestTimeout:    cfg.Server.RequestTimeout,
		},
		limits,
	)
	router := transportHTTP.NewRouter(handler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// gRPC listener on the companion port
	grpcServer := grpcx.NewServer(engine, m, clock)
	grpcAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort())

	// Expired refresh token cleanup
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			deleted, err := st.DeleteExpiredRefreshTokens(ctx, clock.Now())
			if err != nil {
				slog.ErrorContext(ctx, "failed to cleanup expired refresh tokens", logger.Error(err))
				continue
			}
			if deleted > 0 {
				slog.InfoContext(ctx, "cleaned up expired refresh tokens", logger.RowsAffected(deleted))
			}
		}
	}()

	// Start servers
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()
	go func() {
		slog.Info("starting grpc server", logger.Component("grpc"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("grpc listening on %s", grpcAddr))
		if err := grpcServer.Serve(grpcAddr); err != nil {
			slog.Error("grpc server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}
	grpcServer.Stop()

	slog.Info("server stopped")
}

func runMigrate(cfg *config.Config) error {
	ctx := context.Background()
	pool, err := postgres.Connect(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MinOpenConns,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	fmt.Println("Applying initial schema...")
	if err := postgres.Migrate(ctx, pool, postgres.InitialSchema); err != nil {
		return err
	}
	fmt.Println("Migration successful.")
	return nil
}
