// @title Youth Exchange Registration API
// @version 1.0
// @description Registration and guardian invitation lifecycle for youth exchange events.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the JWT.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"youthexchange/config"
	_ "youthexchange/docs"
	"youthexchange/internal/adapters/auth"
	"youthexchange/internal/adapters/email"
	deliveryhttp "youthexchange/internal/delivery/http"
	"youthexchange/internal/delivery/http/controllers"
	"youthexchange/internal/domain"
	"youthexchange/internal/metrics"
	"youthexchange/internal/repository/changefeed"
	"youthexchange/internal/repository/docstore"
	"youthexchange/internal/repository/memory"
	"youthexchange/internal/repository/postgres"
	"youthexchange/internal/services"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := config.NewLogger()
	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// run wires the process and blocks until ctx is cancelled or a component fails.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	hub := changefeed.NewHub(logger, cfg.RequestTimeout)
	defer hub.Close()

	var (
		store       domain.EntityStore
		healthCheck func(context.Context) error
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		store = memory.NewStore(hub)
	default:
		db, err := sql.Open("postgres", cfg.DBUrl)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(25)
		db.SetConnMaxIdleTime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		pg := postgres.NewStore(db, hub, logger)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		store = pg
		healthCheck = db.PingContext
		g.Go(func() error {
			return postgres.Listen(ctx, cfg.DBUrl, pg.Origin(), hub, logger)
		})
	}

	var revocations domain.RevocationList = auth.NewMemoryRevocationList()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		revocations = auth.NewRedisRevocationList(client)
	} else {
		logger.Warn("REDIS_URL not set, sign-outs are only remembered by this process")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	repos := docstore.NewRepositories(store)
	tx := docstore.NewTransactor(store)
	signer := auth.NewJWTSigner(cfg.JWTSecret)
	identity := services.NewIdentityService(repos.Principals, auth.NewBcryptHasher(bcrypt.DefaultCost), signer, signer,
		revocations, cfg.JWTExpiry, logger)
	unsubscribeAuth := identity.OnAuthStateChange(func(ev domain.AuthEvent) {
		logger.Info("auth state changed", "kind", ev.Kind, "principal_id", ev.PrincipalID)
	})
	defer unsubscribeAuth()

	if cfg.AdminEmail != "" {
		if err := identity.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			return fmt.Errorf("ensure admin: %w", err)
		}
	}

	mailer, err := email.NewMailer(email.MailerConfig{
		Provider:    cfg.EmailProvider,
		FromAddress: cfg.EmailFromAddress,
		FromName:    cfg.EmailFromName,
		SES: email.SESConfig{
			Region:             cfg.AWSRegion,
			AccessKeyID:        cfg.AWSAccessKeyID,
			SecretAccessKey:    cfg.AWSSecretAccessKey,
			InsecureSkipVerify: cfg.SESInsecureSkipVerify,
		},
	}, logger)
	if err != nil {
		return err
	}
	renderer, err := email.NewTemplateRenderer()
	if err != nil {
		return err
	}
	emailService := services.NewEmailService(mailer, renderer, logger)

	policy := domain.PermissiveTransitions
	if cfg.RegistrationTransitions == config.TransitionsStrict {
		policy = domain.StrictTransitions
	}

	events := services.NewEventService(repos.Events, cfg.RequestTimeout)
	registrants := services.NewRegistrantService(repos.Registrants, cfg.RequestTimeout)
	registrations := services.NewRegistrationService(repos, tx, policy, m, logger, cfg.RequestTimeout)
	invitations := services.NewInvitationService(repos, tx, identity, emailService, m, logger, services.InvitationConfig{
		TokenBytes:    cfg.InviteTokenBytes,
		PublicBaseURL: cfg.PublicBaseURL,
	}, cfg.RequestTimeout)

	router := deliveryhttp.NewRouter(deliveryhttp.Controllers{
		Auth:          controllers.NewAuthController(logger, identity),
		Events:        controllers.NewEventController(logger, events),
		Registrants:   controllers.NewRegistrantController(logger, registrants),
		Registrations: controllers.NewRegistrationController(logger, registrations, m),
		Invites:       controllers.NewInviteController(logger, invitations, m),
		Guest:         controllers.NewGuestController(logger, invitations, registrations),
	}, deliveryhttp.RouterConfig{
		Logger:        logger,
		Authenticator: identity,
		Metrics:       m,
		Gatherer:      reg,
		CORSOrigins:   cfg.CORSAllowedOrigins,
		HealthCheck:   healthCheck,
	})

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g.Go(func() error {
		logger.Info("starting server", "addr", srv.Addr, "env", cfg.Environment, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
