package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"blankcanvas-be/internal/config"
	"blankcanvas-be/internal/db"
	"blankcanvas-be/internal/logger"
	"blankcanvas-be/internal/middleware"
	"blankcanvas-be/internal/order"
	"blankcanvas-be/internal/payment"
	"blankcanvas-be/internal/payment/webhook"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	initDBFunc      = db.InitDB
	startServerFunc = listenAndServe
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg := config.LoadConfig()

	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database := initDBFunc(cfg)
	defer database.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router, closeServer := newServer(ctx, cfg, database)
	defer func() {
		if err := closeServer(); err != nil {
			logger.L().Warn("failed to release server resources", zap.Error(err))
		}
	}()

	addr := ":" + cfg.AppPort
	logger.L().Info("payment callback server running", zap.String("addr", addr), zap.String("env", cfg.AppEnv))
	return startServerFunc(addr, router)
}

// newServer wires the handlers. Background work stops when ctx is done;
// the returned func releases the redis client.
func newServer(ctx context.Context, cfg *config.Config, database *sql.DB) (http.Handler, func() error) {
	closeFn := func() error { return nil }

	var cache order.ResolvedCache
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		cache = order.NewRedisResolvedCache(client, cfg.ResolvedCacheTTL)
		closeFn = client.Close
	}

	orderSvc := order.NewService(order.NewRepository(database), cache)

	webhookHandler := webhook.NewWebhookHandler(
		orderSvc,
		payment.NewVNPay(cfg.VNPayHashSecret),
		payment.NewMoMo(cfg.MoMoAccessKey, cfg.MoMoSecretKey),
		payment.NewRepository(database),
		webhook.ReturnConfig{
			ClientURL: cfg.ClientURL,
			DeepLink:  cfg.DeepLink,
		},
	)

	proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		logger.L().Warn("ignoring TRUSTED_PROXIES, X-Forwarded-For will not be trusted", zap.Error(err))
		proxies = nil
	}

	limiter := middleware.NewRateLimiter(cfg.InternalSecretKey, proxies)
	go limiter.Run(ctx, time.Minute)

	return setupRouter(webhookHandler, limiter), closeFn
}

func setupRouter(h *webhook.Handler, limiter *middleware.RateLimiter) chi.Router {
	r := chi.NewRouter()

	r.Use(logger.RequestIDMiddleware)
	r.Use(logger.LoggingMiddleware)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/payment", func(r chi.Router) {
		// Gateways read IPN replies in their own format, never a 429.
		vnpayIPN := r.With(limiter.Limit(h.VNPayIPNThrottled))
		vnpayIPN.Get("/vnpay/ipn", h.VNPayIPNHandler)
		vnpayIPN.Post("/vnpay/ipn", h.VNPayIPNHandler)
		r.With(limiter.Limit(h.MoMoIPNThrottled)).Post("/momo/ipn", h.MoMoIPNHandler)

		r.With(limiter.Middleware).Get("/vnpay/return", h.VNPayReturnHandler)
		r.With(limiter.Middleware).Get("/momo/return", h.MoMoReturnHandler)
	})

	return r
}

// listenAndServe blocks until the server fails or SIGINT/SIGTERM, then
// drains in-flight callbacks.
func listenAndServe(addr string, handler http.Handler) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.L().Info("shutting down payment callback server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
