package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/BearBump/ScanDock/config"
	"github.com/BearBump/ScanDock/internal/services/exceptions"
	"github.com/BearBump/ScanDock/internal/services/feedsync"
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
)

type workerHTTPOpts struct {
	httpAddr       string
	swaggerPath    string
	allowedOrigins []string
	onListen       func(httpAddr string)

	reconciler *feedsync.Reconciler
	sweeper    exceptionSweeper
	cfg        *config.Config
}

type exceptionSweeper interface {
	ReconcileAll(ctx context.Context) (exceptions.SweepStats, error)
}

func swaggerPathFromEnv() string {
	return os.Getenv("swaggerPath")
}

// originAllowed: пустой список — доверяем всем (за периметром); запрос без
// Origin (curl, однохостовые вызовы) тоже пропускаем.
func originAllowed(allowed []string, origin string) bool {
	if len(allowed) == 0 || origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == origin {
			return true
		}
	}
	return false
}

func requireOrigin(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !originAllowed(allowed, r.Header.Get("Origin")) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"origin not allowed"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func runWorkerHTTPServer(ctx context.Context, opts workerHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}
	if opts.swaggerPath == "" {
		return fmt.Errorf("worker swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("worker swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.reconciler == nil {
			_, _ = w.Write([]byte(`{"error":"reconciler not wired"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(opts.reconciler.Stats())
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.cfg == nil {
			_, _ = w.Write([]byte(`{"error":"config not wired"}`))
			return
		}
		// Токены аккаунтов наружу не отдаём, только операционные настройки.
		marketplaces := make([]map[string]any, 0, len(opts.cfg.Marketplaces))
		for _, mc := range opts.cfg.Marketplaces {
			names := make([]string, 0, len(mc.Accounts))
			for _, ac := range mc.Accounts {
				names = append(names, ac.Name)
			}
			marketplaces = append(marketplaces, map[string]any{"name": mc.Name, "accounts": names})
		}
		out := map[string]any{
			"syncIntervalSeconds": opts.cfg.ScanDock.WorkerSyncIntervalSeconds,
			"lookbackDays":        opts.cfg.ScanDock.WorkerLookbackDays,
			"limitPerPage":        opts.cfg.ScanDock.WorkerLimitPerPage,
			"maxPages":            opts.cfg.ScanDock.WorkerMaxPages,
			"rateLimitPerMinute":  opts.cfg.ScanDock.WorkerRateLimitPerMinute,
			"marketplaces":        marketplaces,
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	// Триггеры мутируют состояние — только с доверенных ориджинов.
	r.Group(func(r chi.Router) {
		r.Use(requireOrigin(opts.allowedOrigins))

		r.Post("/sync", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if opts.reconciler == nil {
				_, _ = w.Write([]byte(`{"error":"reconciler not wired"}`))
				return
			}
			opts.reconciler.Trigger("")
			_, _ = w.Write([]byte(`{"triggered":true}`))
		})

		// Синхронный прогон одного маркетплейса: границы пула в теле,
		// в ответе — итоги и статистика по аккаунтам.
		r.Post("/sync/{marketplace}", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if opts.reconciler == nil {
				_, _ = w.Write([]byte(`{"error":"reconciler not wired"}`))
				return
			}
			var p feedsync.Params
			if r.Body != nil && r.ContentLength != 0 {
				if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
					w.WriteHeader(http.StatusBadRequest)
					_, _ = w.Write([]byte(`{"error":"invalid json body"}`))
					return
				}
			}
			res, err := opts.reconciler.RunMarketplace(r.Context(), chi.URLParam(r, "marketplace"), p)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
				return
			}
			_ = json.NewEncoder(w).Encode(res)
		})

		// Ручной прогон очереди исключений, тот же код, что и в scan-api.
		r.Post("/sweep", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if opts.sweeper == nil {
				_, _ = w.Write([]byte(`{"error":"sweeper not wired"}`))
				return
			}
			st, err := opts.sweeper.ReconcileAll(r.Context())
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
				return
			}
			_ = json.NewEncoder(w).Encode(st)
		})
	})

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, opts.swaggerPath)
	})

	swaggerURL := "/swagger.json"
	if fi, err := os.Stat(opts.swaggerPath); err == nil {
		swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
	}
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	return srv.Serve(lis)
}
