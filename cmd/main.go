package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwrk-planet/logger/pkg/logger"
	"github.com/cwrk-planet/vault-room-service/config"
	"github.com/cwrk-planet/vault-room-service/internal/crypto"
	"github.com/cwrk-planet/vault-room-service/internal/github"
	"github.com/cwrk-planet/vault-room-service/internal/service"
	"github.com/cwrk-planet/vault-room-service/internal/store"
	httpx "github.com/cwrk-planet/vault-room-service/internal/transport/http"
	"github.com/cwrk-planet/vault-room-service/internal/transport/ws"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting vault-room-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "store", cfg.Store.Backend)

	// --- codec ---
	sealer, err := crypto.NewSealer(cfg.Secrets.SecretKey)
	if err != nil {
		log.Fatalf("sealer: %v", err)
	}

	// --- blob store ---
	var blobStore store.Store
	switch cfg.Store.Backend {
	case "memory":
		blobStore = store.NewMemory()
	default:
		blobStore = github.NewClient(github.Config{
			BaseURL: cfg.Store.BaseURL,
			Owner:   cfg.Store.Owner,
			Repo:    cfg.Store.Repo,
			Branch:  cfg.Store.Branch,
			Token:   cfg.Secrets.StoreToken,
			Timeout: cfg.StoreTimeout(),
		})
	}

	// --- WS Hub (он же Notifier для фанаута) ---
	hub := ws.NewHub()

	// --- services ---
	roomSvc := service.NewRoomService(blobStore, sealer, hub)
	roomSvc.SetMaxMessages(cfg.Limits.MaxMessages)
	roomSvc.SetRetention(cfg.Retention())

	tokenSvc := service.NewTokenService(cfg.Secrets.SecretKey, cfg.TokenTTL())
	attachSvc := service.NewAttachmentService(blobStore, sealer)

	// --- transports ---
	wsServer := ws.NewServer(hub, roomSvc, tokenSvc, cfg.Secrets.AdminPassword)
	handler := httpx.NewHandler(roomSvc, tokenSvc, attachSvc, cfg.Secrets.EntryPassword, cfg.Limits.MaxUploadBytes)
	router := httpx.NewRouter(handler, wsServer)

	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(ctxShutdown)
	slog.Info("stopped")
}
