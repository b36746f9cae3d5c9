package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"foliohub.org/internal/authz"
	"foliohub.org/internal/community"
	"foliohub.org/internal/config"
	"foliohub.org/internal/httpapi"
	"foliohub.org/internal/obs"
	"foliohub.org/internal/store/memory"
	"foliohub.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Postgres when a DSN is configured, in-memory otherwise. The memory
	// store keeps local development and CI independent of a database.
	var (
		grants  authz.Store
		scopes  authz.ScopeResolver
		members authz.Membership
		comms   community.Store
		probe   httpapi.ReadyProbe
		cleanup func()
	)
	if cfg.PostgresDSN != "" {
		store, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		grants, scopes, members, comms = store, store, store, store
		probe = httpapi.ReadyProbe{DB: store.DB()}
		cleanup = func() { _ = store.Close() }
	} else {
		log.Println("FOLIOHUB_PG_DSN is empty, using in-memory store")
		store := memory.NewStore()
		grants, scopes, members, comms = store, store, store, store
		cleanup = func() {}
	}

	eval, err := authz.NewEvaluator(grants, scopes, members)
	if err != nil {
		log.Fatalf("evaluator: %v", err)
	}
	assignments, err := authz.NewAssignmentService(grants, eval)
	if err != nil {
		log.Fatalf("assignment service: %v", err)
	}
	toggle, err := authz.NewRestrictionToggle(grants, scopes)
	if err != nil {
		log.Fatalf("restriction toggle: %v", err)
	}
	communities, err := community.NewService(comms, grants, eval)
	if err != nil {
		log.Fatalf("community service: %v", err)
	}

	api := httpapi.New(probe, version, eval, assignments, toggle, communities)

	handler := api.Handler()
	handler = httpapi.RateLimit(handler, cfg.RateBurst, cfg.RatePerSecond)
	handler = httpapi.MaxBodyBytes(handler, cfg.MaxBodyBytes)
	handler = httpapi.CORS(handler)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.LoggingJSON(handler)
	handler = httpapi.RequestID(handler)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting foliohub-api %s on %s", version, srv.Addr)

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
	cleanup()
	log.Println("Stopped")
}
