package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"royalbakes/backend/internal/config"
	"royalbakes/backend/internal/connectivity"
	"royalbakes/backend/internal/httpapi"
	"royalbakes/backend/internal/localstore"
	"royalbakes/backend/internal/remote"
	memremote "royalbakes/backend/internal/remote/memory"
	mongoremote "royalbakes/backend/internal/remote/mongo"
	pgremote "royalbakes/backend/internal/remote/postgres"
	"royalbakes/backend/internal/repo"
	"royalbakes/backend/internal/service"
	"royalbakes/backend/internal/syncer"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("config: loaded .env")
	}
	cfg := config.Load()
	if len(cfg.AuthSecret) < 32 {
		log.Fatal("AUTH_SECRET must be set and at least 32 characters")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	var local localstore.Store
	if cfg.RedisAddr != "" {
		rs := localstore.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rs.Ping(ctx); err != nil {
			log.Fatalf("redis unavailable (%v) and REDIS_ADDR is set; refusing to start without a durable local store", err)
		}
		local = rs
		closers = append(closers, rs.Close)
		log.Println("local store: redis")
	} else {
		fs, err := localstore.NewFileStore(cfg.DataFile)
		if err != nil {
			log.Fatalf("local store unavailable: %v", err)
		}
		local = fs
		log.Printf("local store: file (%s)", cfg.DataFile)
	}

	var remoteStore remote.Store
	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgremote.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		remoteStore = pg
		closers = append(closers, pg.Close)
		log.Println("remote store: postgres")
	case cfg.MongoURI != "":
		mg, err := mongoremote.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			log.Fatalf("mongodb unavailable (%v) and MONGO_URI is set; refusing to start with in-memory fallback", err)
		}
		remoteStore = mg
		closers = append(closers, func() error { return mg.Close(context.Background()) })
		log.Println("remote store: mongodb")
	default:
		remoteStore = memremote.New()
		log.Println("remote store: in-memory (dev mode)")
	}

	monitor := connectivity.NewMonitor(remoteStore.Ping, time.Duration(cfg.ProbeIntervalSeconds)*time.Second)
	engine, err := syncer.New(ctx, local, remoteStore, monitor)
	if err != nil {
		log.Fatalf("sync engine: %v", err)
	}

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	monitor.OnOnline(func() {
		result := engine.Drain(runCtx)
		log.Printf("drain after reconnect: synced=%d remaining=%d dropped=%d", result.Synced, result.Remaining, result.Dropped)
	})
	monitor.Start(runCtx)

	repos := repo.New(engine, local, remoteStore)
	svc := service.New(repos, engine, remoteStore, local)
	if err := svc.EnsureSeedData(runCtx); err != nil {
		log.Printf("WARN: seed data: %v", err)
	}

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, cfg.LowStockThreshold)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("POS backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}
	log.Println("server stopped")
}
