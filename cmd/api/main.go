package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classhub.org/internal/auth"
	"classhub.org/internal/config"
	"classhub.org/internal/httpapi"
	"classhub.org/internal/mail"
	"classhub.org/internal/obs"
	"classhub.org/internal/store/pg"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("CLASSHUB_COMMIT"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Postgres when a DSN is configured, in-memory otherwise (dev only).
	var store auth.Store
	probe := httpapi.ReadyProbe{}
	if cfg.Database.DSN != "" {
		pgStore, err := pg.Open(cfg.Database.DSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
		probe.DB = pgStore.DB()
	} else {
		log.Println("no database DSN configured, using in-memory store")
		store = auth.NewMemoryStore()
	}

	issuer, err := auth.NewIssuer(cfg.JWT.Secret, cfg.JWT.Algorithm, store.Tokens(context.Background()))
	if err != nil {
		log.Fatalf("issuer: %v", err)
	}
	mailer := &mail.LogMailer{Logger: obs.Logger(), BaseURL: cfg.Mail.BaseURL}
	svc := auth.NewService(store, issuer, auth.WithMailer(mailer))
	gate := auth.NewGate(issuer, store)
	policy := auth.NewPolicy(store)

	api := httpapi.New(httpapi.Options{
		Service:      svc,
		Gate:         gate,
		Policy:       policy,
		Ready:        probe,
		Version:      version,
		ServiceToken: cfg.Internal.ServiceToken,
	})

	handler := api.Handler()
	handler = httpapi.RequestID(handler)
	handler = httpapi.LoggingJSON(handler)
	handler = httpapi.RateLimit(handler, cfg.RateLimit.Burst, cfg.RateLimit.PerSecond)
	handler = httpapi.MaxBodyBytes(handler, cfg.Server.MaxBodyBytes)
	handler = httpapi.CORS(handler)
	handler = httpapi.SecurityHeaders(handler)

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting classhub-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
