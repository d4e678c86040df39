package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"staybook/internal/health"
	"staybook/pkg/auth"
	"staybook/pkg/config"
	"staybook/pkg/contracts"
	"staybook/pkg/middleware"

	"github.com/julienschmidt/httprouter"
)

// Worker is a background loop that runs until its context is cancelled.
type Worker interface {
	Run(ctx context.Context)
}

type namedWorker struct {
	name   string
	worker Worker
}

type namedCloser struct {
	name   string
	closer io.Closer
}

type Application struct {
	cfg              *config.Config
	server           *http.Server
	idempotencyStore middleware.IdempotencyStore
	healthHandler    http.Handler
	appHttpHandler   http.Handler

	workers       []namedWorker
	closers       []namedCloser
	cancelWorkers context.CancelFunc
	workersDone   sync.WaitGroup
}

func NewApplication(cfg *config.Config) *Application {
	return &Application{cfg: cfg}
}

func (a *Application) SetApp(appHandlers ...contracts.Handler) {
	a.setHealthHandler()
	a.setAppHandler(appHandlers)
	a.setAppServer()
}

// AddWorker registers a loop started with Run and stopped before the
// connections are closed on shutdown.
func (a *Application) AddWorker(name string, worker Worker) {
	a.workers = append(a.workers, namedWorker{name: name, worker: worker})
}

// AddCloser registers a resource released after the workers stopped.
func (a *Application) AddCloser(name string, closer io.Closer) {
	a.closers = append(a.closers, namedCloser{name: name, closer: closer})
}

func (a *Application) setHealthHandler() {
	healthRouter := httprouter.New()
	health.NewHealthHandler(a.cfg.Client, a.cfg.Log).RegisterRoutes(healthRouter)

	var healthHTTPHandler http.Handler = healthRouter
	healthHTTPHandler = middleware.RequestLogging(a.cfg.Log)(healthHTTPHandler)
	healthHTTPHandler = middleware.Recovery(a.cfg.Log)(healthHTTPHandler)
	a.healthHandler = healthHTTPHandler
	a.cfg.Log.Info("Health endpoints configured with minimal middleware (Recovery + Logging only)")
}

func (a *Application) setAppHandler(appHandlers []contracts.Handler) {
	cfg := a.cfg
	appRouter := httprouter.New()
	for _, h := range appHandlers {
		h.RegisterRoutes(appRouter)
	}

	if cfg.Client.Redis != nil {
		a.idempotencyStore = middleware.NewRedisIdempotencyStore(cfg.Client.Redis, cfg.IdempotencyTTL, cfg.Log)
	} else {
		a.idempotencyStore = middleware.NewInMemoryIdempotencyStore(cfg.IdempotencyTTL)
	}

	rateLimiter, err := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, cfg.TrustProxyHeaders, cfg.Client.Redis, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create rate limiter", "error", err)
	}

	verifier := auth.NewTokenVerifier(cfg.JWTSecret)

	a.appHttpHandler = securedHandler(appRouter, cfg, rateLimiter, verifier, a.idempotencyStore)
	cfg.Log.Info("Application endpoints configured with full security middleware stack",
		"redis_backed", cfg.Client.Redis != nil,
	)
}

// securedHandler wraps next in the request pipeline. Rate limiting runs
// before authentication and is keyed by client IP.
func securedHandler(next http.Handler, cfg *config.Config, rateLimiter *middleware.RateLimiter, verifier *auth.TokenVerifier, store middleware.IdempotencyStore) http.Handler {
	next = middleware.Idempotency(store, middleware.DefaultIdempotencyHeader)(next)
	next = middleware.RequestTimeout(cfg.RequestTimeout)(next)
	next = auth.Authenticate(verifier, cfg.TokenCookieName, cfg.Log)(next)
	next = middleware.RateLimit(rateLimiter)(next)
	next = middleware.ContentTypeValidation(cfg.Log)(next)
	next = middleware.MaxRequestSize(int64(cfg.MaxRequestSize), cfg.Log)(next)
	next = middleware.RequestLogging(cfg.Log)(next)
	next = middleware.Recovery(cfg.Log)(next)
	return next
}

func (a *Application) setAppServer() {
	mux := http.NewServeMux()
	mux.Handle("/health", a.healthHandler)
	mux.Handle("/ready", a.healthHandler)
	mux.Handle("/", a.appHttpHandler)

	a.server = &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      mux,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

func (a *Application) startWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancelWorkers = cancel

	for _, w := range a.workers {
		a.workersDone.Add(1)
		go func(w namedWorker) {
			defer a.workersDone.Done()
			a.cfg.Log.Info("Starting background worker", "worker", w.name)
			w.worker.Run(ctx)
			a.cfg.Log.Info("Background worker stopped", "worker", w.name)
		}(w)
	}
}

func (a *Application) Run() {
	a.startWorkers()

	serverErrors := make(chan error, 1)

	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", a.server.Addr)
		serverErrors <- a.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return
		}
		a.cfg.Log.Error("HTTP server failed", "error", err)
		a.gracefulShutdown()
		os.Exit(1)

	case sig := <-shutdown:
		a.cfg.Log.Info("Shutdown signal received", "signal", sig)
		a.gracefulShutdown()
	}
}

func (a *Application) gracefulShutdown() {
	a.cfg.Log.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Error("Could not stop server gracefully", "error", err)
		}
	}

	a.cfg.Log.Info("Stopping background workers...")
	if a.cancelWorkers != nil {
		a.cancelWorkers()
	}
	a.workersDone.Wait()
	if a.idempotencyStore != nil {
		a.idempotencyStore.Stop()
	}
	a.cfg.Log.Info("Background workers stopped")

	for _, c := range a.closers {
		if err := c.closer.Close(); err != nil {
			a.cfg.Log.Error("Failed to close resource", "resource", c.name, "error", err)
		}
	}

	a.cfg.Log.Info("Server stopped gracefully")
	a.cfg.GracefulShutdown()
}
