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

	"portico.dev/internal/activity"
	"portico.dev/internal/auth"
	"portico.dev/internal/config"
	"portico.dev/internal/httpapi"
	"portico.dev/internal/obs"
	"portico.dev/internal/portfolio"
	"portico.dev/internal/store"
	"portico.dev/internal/store/memory"
	"portico.dev/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// With no DSN the API runs fully in memory, which is enough for local
	// development and the test suite.
	var (
		st      store.Store
		probe   httpapi.ReadyProbe
		pgStore *pg.Store
	)
	if cfg.DatabaseURL != "" {
		pgStore, err = pg.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		st = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		log.Printf("PORTICO_PG_DSN not set, using in-memory store")
		st = memory.New()
	}

	codec, err := auth.NewCodec(cfg.JWTSecret, cfg.JWTAlgorithm, cfg.AccessTTL(), cfg.RefreshTTL())
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}
	sessions, err := auth.NewSessions(st, codec)
	if err != nil {
		log.Fatalf("sessions: %v", err)
	}
	resolver := auth.NewResolver(st.Users(), codec)
	recorder := activity.NewRecorder(st.Activity())
	svc, err := portfolio.NewService(st, recorder)
	if err != nil {
		log.Fatalf("portfolio: %v", err)
	}

	api := httpapi.New(probe, httpapi.Options{
		Version:    version,
		RateBurst:  cfg.RateBurst,
		RatePerSec: cfg.RatePerSec,
	}, sessions, resolver, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting portico-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if pgStore != nil {
		_ = pgStore.Close()
	}
	log.Println("Stopped")
}
