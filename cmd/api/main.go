package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"strand/api/internal/app"
	"strand/api/internal/config"
	"strand/api/internal/directory"
	"strand/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	client, err := store.Open(ctx, cfg.MongoURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer client.Disconnect(context.Background())

	dataStore := store.NewMongoStore(client, cfg.MongoDatabase)
	if err := dataStore.EnsureIndexes(ctx); err != nil {
		log.Fatalf("index creation failed: %v", err)
	}

	var service *app.Service
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis profile cache")
		cache, err := directory.NewCache(cfg.RedisURL, cfg.ProfileCacheTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer cache.Close()
		service = app.NewWithProfileCache(cfg, dataStore, cache)
	} else {
		service = app.New(cfg, dataStore)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Strand API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
