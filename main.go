// Copyright 2026 The Terashift Contributors
// SPDX-License-Identifier: Apache-2.0

// The mediaproxy server sits in front of a binary-object storage
// backend, serves raw media files and produces resized/re-encoded
// image variants on request. Variants are produced once, cached
// durably at the backend under a reserved path prefix and served with
// long-lived HTTP caching headers from then on.
//
// Exactly one storage backend is active per process; it is selected
// at startup from the environment. Backends capable of transforming
// images at the edge are not proxied through the local pipeline:
// transform requests are translated into the backend's own parameter
// vocabulary and redirected.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/terashift/mediaproxy/config"
	"github.com/terashift/mediaproxy/logs"
	"github.com/terashift/mediaproxy/proxy"
	"github.com/terashift/mediaproxy/storage"
	"github.com/terashift/mediaproxy/transform"
)

// This variable is initialised during the build process.
var version string = "devel"

// allowedHosts assembles the outbound allowlist from the hostnames
// embedded in the active backend's own configuration.
func allowedHosts(backend storage.Backend) []string {
	type hostLister interface {
		Hostnames() []string
	}

	if l, ok := backend.(hostLister); ok {
		return l.Hostnames()
	}

	if u, err := url.Parse(backend.PublicURLFor("probe.jpg")); err == nil && u.Hostname() != "" {
		return []string{u.Hostname()}
	}

	return nil
}

func healthHandler(backend storage.Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"version": version,
			"backend": backend.Name(),
		})
	}
}

func main() {
	logs.Init(version)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("failed to load .env file")
	}

	cfg, err := config.FromEnv()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	var backend storage.Backend
	var dialect transform.Dialect

	switch cfg.Backend {
	case config.Bunny:
		backend, err = storage.NewBunnyBackend(cfg.Bunny)
		dialect = transform.BunnyDialect{}
	case config.S3:
		backend, err = storage.NewS3Backend(cfg.S3)
	case config.FileSystem:
		backend, err = storage.NewFSBackend(cfg.FS)
	}
	if err != nil {
		log.WithError(err).Fatal("failed to initialise storage backend")
	}

	log.WithField("backend", backend.Name()).Info("initialised storage backend")

	guard := proxy.NewOutboundGuard(allowedHosts(backend))
	limiter := proxy.NewFixedWindowLimiter(
		cfg.RateLimitRequests,
		time.Duration(cfg.RateLimitWindow)*time.Second,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go limiter.Run(ctx)

	handler := proxy.NewHandler(backend, guard, dialect)
	deleter := &proxy.DeleteHandler{
		Cleaner: &transform.Cleaner{Backend: backend},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(proxy.SecurityHeaders)
	r.Use(proxy.CORS())
	r.Use(proxy.Throttle(cfg.Throughput))

	r.Group(func(r chi.Router) {
		r.Use(proxy.RateLimit(limiter))
		r.Get("/media/*", handler.ServeMedia)
	})
	r.Delete("/media/*", deleter.ServeDelete)
	r.Get("/healthz", healthHandler(backend))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.WithFields(log.Fields{
		"version": version,
		"port":    cfg.Port,
	}).Info("starting mediaproxy")

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server terminated")
	}
}
