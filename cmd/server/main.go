// Command server runs the campus forum backend: the public auth endpoints,
// the session-gated forum endpoints, and the audit pipeline.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	authhandler "agora/internal/auth/handler"
	authservice "agora/internal/auth/service"
	"agora/internal/auth/sso"
	authpg "agora/internal/auth/store/postgres"
	"agora/internal/auth/store/revocation"
	"agora/internal/auth/token"
	forumhandler "agora/internal/forum/handler"
	forumservice "agora/internal/forum/service"
	forumpg "agora/internal/forum/store/postgres"
	"agora/internal/platform/config"
	"agora/internal/platform/httpserver"
	"agora/internal/platform/logger"
	"agora/internal/platform/metrics"
	"agora/internal/platform/middleware"
	platformredis "agora/internal/platform/redis"
	audit "agora/pkg/platform/audit"
	auditsink "agora/pkg/platform/audit/sink"
	auditpg "agora/pkg/platform/audit/store/postgres"
	auditworker "agora/pkg/platform/audit/worker"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("configuration invalid", "error", err)
		os.Exit(1)
	}
	log := logger.New()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return err
	}

	// Separate database/sql handle for the audit store; audit writes stay
	// off the request hot path's pool.
	auditDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer auditDB.Close()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	var trl *revocation.RedisTRL
	if redisClient != nil {
		defer redisClient.Close()
		trl = revocation.NewRedisTRL(redisClient.Client)
	} else {
		log.Warn("redis not configured, token revocation disabled")
	}

	m := metrics.New()
	codec := token.New(cfg.JWTSecret, cfg.AESKey, cfg.AESIV, cfg.TokenTTL, config.Issuer)
	ssoClient := sso.New(cfg.SSOValidateURL, cfg.SSOAppID, cfg.SSOAppKey, log)

	publisher := audit.NewPublisher(log)
	sinks := []audit.Store{auditpg.New(auditDB)}
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := auditsink.NewKafka(ctx, cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			return err
		}
		defer kafka.Close()
		sinks = append(sinks, kafka)
	}

	users := authpg.New(pool)
	authSvc := authservice.New(users, ssoClient, codec, trlOrNil(trl), publisher, m, log)
	forumSvc := forumservice.New(forumpg.New(pool), forumpg.NewImageStore(pool), log)

	authenticator := middleware.NewAuthenticator(codec, checkerOrNil(trl), m, log)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.ClientMetadata,
		middleware.Recovery(log),
		middleware.Logger(log),
	)
	router.Mount("/auth", authhandler.New(authSvc, log).Routes())
	router.Route("/forum", func(r chi.Router) {
		r.Use(authenticator.RequireSession)
		r.Mount("/", forumhandler.New(forumSvc, log).Routes())
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", healthz(pool, redisClient))

	srv := httpserver.New(cfg.Addr, router)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := auditworker.New(publisher.Events(), log, sinks...).Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// trlOrNil avoids handing the service a typed nil behind its interface.
func trlOrNil(trl *revocation.RedisTRL) authservice.Revoker {
	if trl == nil {
		return nil
	}
	return trl
}

func checkerOrNil(trl *revocation.RedisTRL) middleware.RevocationChecker {
	if trl == nil {
		return nil
	}
	return trl
}

func healthz(pool *pgxpool.Pool, redisClient *platformredis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := pool.Ping(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		if redisClient != nil {
			if err := redisClient.Health(ctx); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
