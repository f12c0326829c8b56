// Package main запускает HTTP-сервер сервиса servimarket.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mkazakov/servimarket-system/internal/config"
	"github.com/mkazakov/servimarket-system/internal/gateway"
	"github.com/mkazakov/servimarket-system/internal/handler"
	"github.com/mkazakov/servimarket-system/internal/middleware"
	"github.com/mkazakov/servimarket-system/internal/repository"
	"github.com/mkazakov/servimarket-system/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	var gw service.Gateway
	if cfg.GatewayAccessToken != "" {
		client, err := gateway.NewClient(cfg.GatewayAccessToken)
		if err != nil {
			sugar.Fatalw("payment gateway initialization error", "error", err.Error())
		}
		gw = client
	} else {
		sugar.Warn("payment gateway token not set, online payments disabled")
	}

	svc := service.NewService(repo, gw, logger, service.Settings{
		FeeRate:         cfg.PlatformFeeRate,
		Currency:        cfg.GatewayCurrency,
		FrontendURL:     cfg.FrontendURL,
		PublicBaseURL:   cfg.PublicBaseURL,
		CheckoutBaseURL: cfg.CheckoutBaseURL,
	})
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск фоновой сверки зависших онлайн-платежей
	g.Go(func() error {
		svc.StartPaymentReconciliation(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting servimarket server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
