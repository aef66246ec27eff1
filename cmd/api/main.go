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

	"github.com/Lyf-Planner/lyf-api-sub000/internal/app"
	"github.com/Lyf-Planner/lyf-api-sub000/internal/config"
	"github.com/Lyf-Planner/lyf-api-sub000/internal/hierarchy"
	"github.com/Lyf-Planner/lyf-api-sub000/internal/notify"
	"github.com/Lyf-Planner/lyf-api-sub000/internal/permcache"
	"github.com/Lyf-Planner/lyf-api-sub000/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewStore(db)
	mutator := hierarchy.NewMutator(dataStore)
	resolver := hierarchy.NewResolver(dataStore)

	service := app.New(dataStore, mutator, resolver)

	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for resolved-permission caching")
		cache, err := permcache.NewRedisCache(cfg.RedisURL, cfg.PermCacheTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer cache.Close()
		service = service.WithCache(cache)
	}

	notifier := notify.NewService(notify.Config{
		Host:            cfg.SMTPHost,
		Port:            cfg.SMTPPort,
		Username:        cfg.SMTPUsername,
		Password:        cfg.SMTPPassword,
		From:            cfg.SMTPFrom,
		FromName:        cfg.SMTPFromName,
		RecipientDomain: cfg.RecipientDomain,
	})
	if notifier.IsConfigured() {
		log.Printf("Invite notifications enabled via %s", cfg.SMTPHost)
		service = service.WithNotifier(notifier)
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
		log.Printf("Lyf notes API listening on %s", cfg.Addr)
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
