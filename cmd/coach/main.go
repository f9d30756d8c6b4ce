package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/confusedguy/firstpr-coach/internal/backend"
	"github.com/confusedguy/firstpr-coach/internal/config"
	"github.com/confusedguy/firstpr-coach/internal/handler"
	"github.com/confusedguy/firstpr-coach/internal/render"
	"github.com/confusedguy/firstpr-coach/internal/service/controller"
	sessionservice "github.com/confusedguy/firstpr-coach/internal/service/session"
	"github.com/confusedguy/firstpr-coach/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Session state is restored from the slot before the first request, so a
	// restart picks up the conversation where it left off.
	sessionSvc := sessionservice.NewService(store.NewFileStore(cfg.State.Path))
	backendClient := backend.New(cfg.Backend.BaseURL, cfg.Backend.Timeout)
	ctrl := controller.New(sessionSvc, backendClient)

	router := handler.NewRouter(ctrl, render.New(), cfg.Server.AllowedOrigins)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("first-PR coach gateway listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
