package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/nkiryanov/crmauth/internal/apperrors"
	"github.com/nkiryanov/crmauth/internal/db"
	"github.com/nkiryanov/crmauth/internal/handlers"
	"github.com/nkiryanov/crmauth/internal/handlers/middleware"
	"github.com/nkiryanov/crmauth/internal/logger"
	"github.com/nkiryanov/crmauth/internal/models"
	"github.com/nkiryanov/crmauth/internal/repository/postgres"
	"github.com/nkiryanov/crmauth/internal/repository/redis"
	"github.com/nkiryanov/crmauth/internal/service/audit"
	"github.com/nkiryanov/crmauth/internal/service/auth"
	"github.com/nkiryanov/crmauth/internal/service/auth/attempts"
	"github.com/nkiryanov/crmauth/internal/service/auth/blacklist"
	"github.com/nkiryanov/crmauth/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/crmauth/internal/service/notify"
	"github.com/nkiryanov/crmauth/internal/service/user"
)

const sweepInterval = time.Minute

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
	Logger     logger.Logger

	// Background jobs bound to the server lifetime
	jobs []func(ctx context.Context)

	// Release resources in reverse order of acquiring
	closers []func()
}

func NewServerApp(ctx context.Context, c *Config) (_ *ServerApp, err error) {
	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	app := &ServerApp{ListenAddr: c.ListenAddr, Logger: l}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	if c.SentryDSN != "" {
		err = sentry.Init(sentry.ClientOptions{
			Dsn:              c.SentryDSN,
			Environment:      c.Environment,
			AttachStacktrace: true,
		})
		if err != nil {
			return nil, fmt.Errorf("error while initializing sentry. Err: %w", err)
		}
		app.closers = append(app.closers, func() { sentry.Flush(2 * time.Second) })
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	app.closers = append(app.closers, pool.Close)

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize services
	tokenManager, err := tokenmanager.New(c.TokenManagerConfig())
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	tracker, revoked, err := app.lockoutStores(ctx, c, tokenManager.ClockSkew())
	if err != nil {
		return nil, err
	}

	var notifier auth.ResetNotifier
	if c.SMTPHost != "" {
		queue := notify.NewQueue(notify.NewMailer(notify.MailerConfig{
			Host:     c.SMTPHost,
			Port:     c.SMTPPort,
			Username: c.SMTPUsername,
			Password: c.SMTPPassword,
			From:     c.SMTPFrom,
			ResetURL: c.ResetURL,
		}, l), notify.DefaultQueueSize, l)
		app.jobs = append(app.jobs, queue.Run)
		notifier = queue
	} else {
		l.Warn("SMTP is not configured, reset links are written to debug log")
		notifier = notify.NewLogNotifier(c.ResetURL, l)
	}

	hasher := auth.BcryptHasher{}
	auditService := audit.NewService(storage.Audit(), l)
	userService := user.NewService(hasher, storage)
	authService, err := auth.NewService(
		auth.Config{Hasher: hasher, LockoutFailOpen: c.LockoutFailOpen, Logger: l},
		auth.Deps{
			Tokens:    tokenManager,
			Users:     storage.User(),
			Attempts:  tracker,
			Blacklist: revoked,
			Audit:     auditService,
			Notifier:  notifier,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	if c.AdminPassword != "" {
		if err := bootstrapAdmin(ctx, userService, c, l); err != nil {
			return nil, err
		}
	}

	trusted, err := middleware.ParseTrustedProxies(c.TrustedProxies)
	if err != nil {
		return nil, err
	}
	app.Handler = handlers.NewRouter(authService, userService, auditService, trusted, l)

	return app, nil
}

// Redis backed stores are shared by replicas. Without Redis both live in process memory
func (a *ServerApp) lockoutStores(ctx context.Context, c *Config, grace time.Duration) (auth.AttemptTracker, auth.Blacklist, error) {
	if c.RedisAddr == "" {
		a.Logger.Warn("Redis is not configured, login attempts and revoked tokens are kept in memory")

		tracker := attempts.NewMemoryTracker(attempts.Config{MaxAttempts: c.MaxLoginAttempts, Window: c.LoginLockout})
		revoked := blacklist.NewMemory(blacklist.Config{Grace: grace, Logger: a.Logger})

		a.jobs = append(a.jobs,
			func(ctx context.Context) { revoked.Run(ctx, sweepInterval) },
			func(ctx context.Context) { pruneAttempts(ctx, tracker, sweepInterval) },
		)
		return tracker, revoked, nil
	}

	client, err := redis.Connect(ctx, c.RedisAddr, c.RedisPassword)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, func() { _ = client.Close() })

	tracker := redis.NewAttemptTracker(client, redis.AttemptsConfig{MaxAttempts: c.MaxLoginAttempts, Window: c.LoginLockout})
	revoked := redis.NewBlacklist(client, redis.BlacklistConfig{Grace: grace})
	return tracker, revoked, nil
}

func pruneAttempts(ctx context.Context, tracker *attempts.MemoryTracker, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			tracker.Prune(now)
		}
	}
}

// Create the first administrator. Existing login is left untouched
func bootstrapAdmin(ctx context.Context, s *user.UserService, c *Config, l logger.Logger) error {
	email := c.AdminEmail
	if email == "" {
		email = c.AdminLogin + "@localhost"
	}

	admin, err := s.Register(ctx, uuid.Nil, user.Registration{
		Username: c.AdminLogin,
		Email:    email,
		Password: c.AdminPassword,
		FullName: "Administrator",
		Roles:    []string{models.RoleAdmin},
	})
	switch {
	case errors.Is(err, apperrors.ErrUserAlreadyExists):
		l.Debug("Administrator already exists", "login", c.AdminLogin)
		return nil
	case err != nil:
		return fmt.Errorf("error while creating administrator. Err: %w", err)
	}

	l.Info("Administrator created", "login", admin.Username, "user_id", admin.ID)
	return nil
}

// Run starts http server and closes gracefully on context cancellation
func (a *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              a.ListenAddr,
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	for _, job := range a.jobs {
		go job(srvCtx)
	}

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			a.Logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		a.Logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	a.Logger.Info("Starting server", "address", a.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}

func (a *ServerApp) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
