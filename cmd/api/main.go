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

	"facilityflow/admin"
	"facilityflow/auth"
	"facilityflow/config"
	"facilityflow/db"
	"facilityflow/dispatch"
	"facilityflow/request"
	"facilityflow/scheduler"
	"facilityflow/staff"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.MaxConns)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	proximity := scheduler.DefaultProximity()
	if cfg.CampusLayout != "" {
		proximity, err = scheduler.LoadProximity(cfg.CampusLayout)
		if err != nil {
			log.Fatalf("load campus layout: %v", err)
		}
	}
	engine := scheduler.NewEngine(proximity)

	requestRepo := request.NewRepository(pool)
	staffRepo := staff.NewRepository(pool)
	userRepo := auth.NewRepository(pool)

	server := &Server{
		authService:     auth.NewService(userRepo, cfg.JWTSecret).WithTokenTTL(cfg.TokenTTL),
		requestService:  request.NewService(pool, requestRepo),
		staffService:    staff.NewService(pool, staffRepo).WithAccounts(userRepo),
		dispatchService: dispatch.NewService(pool, requestRepo, staffRepo, engine).WithOutbox(dispatch.NewOutbox()).WithLogger(logger),
		queueService:    admin.NewQueueService(requestRepo, staffRepo, engine),
		logger:          logger,
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	logger.Info("http server stopped")
}
