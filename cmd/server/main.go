package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"chatbuddy/internal/app"
	"chatbuddy/internal/config"
	"chatbuddy/internal/keylock"
	"chatbuddy/internal/server"
	"chatbuddy/internal/util"
	"chatbuddy/pkg/ai"
	"chatbuddy/pkg/session"
	"chatbuddy/pkg/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = config.ConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	durations, err := cfg.ParseDurations()
	if err != nil {
		log.Fatalf("failed to parse durations: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	defer dataStore.Close()

	var (
		locker    keylock.Locker
		readiness = []func(context.Context) error{dataStore.Ping}
	)
	if cfg.RedisAddr != "" {
		redisLocker, err := keylock.NewRedisLocker(cfg.RedisAddr, cfg.RedisPassword, "chatbuddy:lock", durations.Lock)
		if err != nil {
			log.Fatalf("failed to init redis locker: %v", err)
		}
		defer redisLocker.Close()
		locker = redisLocker
		readiness = append(readiness, redisLocker.Ping)
	} else {
		logger.Warn("redisAddr not set; transcript writes are serialized per process only")
		locker = keylock.NewMemoryLocker()
	}

	tokens, err := session.NewTokenService(cfg.JWTSecret)
	if err != nil {
		log.Fatalf("failed to init token service: %v", err)
	}
	sameSite, err := session.ParseSameSite(cfg.CookieSameSite)
	if err != nil {
		log.Fatalf("failed to parse cookieSameSite: %v", err)
	}
	cookies, err := session.NewCookieTransport(session.CookieConfig{
		Name:        cfg.CookieName,
		Domain:      cfg.CookieDomain,
		Path:        "/",
		Secure:      cfg.CookieSecure,
		SameSite:    sameSite,
		Secret:      cfg.CookieSecret,
		MaxLifetime: durations.Session,
	})
	if err != nil {
		log.Fatalf("failed to init cookie transport: %v", err)
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trustedProxies: %v", err)
	}

	completer, err := ai.NewOpenAICompleter(ai.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), cfg.OpenAIModel)
	if err != nil {
		log.Fatalf("failed to init completer: %v", err)
	}

	appCore, err := app.New(app.Config{
		Store:             dataStore,
		Locker:            locker,
		Completer:         completer,
		Tokens:            tokens,
		SessionTTL:        durations.Session,
		CompletionTimeout: durations.Completion,
		StoreTimeout:      durations.Store,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:               appCore,
		Tokens:            tokens,
		Cookies:           cookies,
		APIPrefix:         cfg.APIPrefix,
		LegacyErrorBodies: cfg.LegacyErrorBodies,
		TrustedProxies:    trusted,
		Ready: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			for _, check := range readiness {
				if err := check(ctx); err != nil {
					return err
				}
			}
			return nil
		},
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	handler := util.WithCORS(cfg.CORSOrigins)(httpServer.Router())
	handler = util.WithSecurityHeaders(handler)
	handler = util.WithRecover(handler)
	handler = util.WithRequestLog(handler)
	handler = util.WithRequestID(handler)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// A converse request may wait for the lock, the provider and the save.
		WriteTimeout: durations.Lock + durations.Completion + 2*durations.Store,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("chatbuddy server listening", "addr", addr, "apiPrefix", cfg.APIPrefix)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}
