package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	scansapi "github.com/BearBump/ScanDock/internal/api/scans_api"
	"github.com/BearBump/ScanDock/internal/broker/messages"
	"github.com/BearBump/ScanDock/internal/models"
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
)

type scanAPIOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

type orderCreator interface {
	CreateOrder(ctx context.Context, in models.OrderCreateInput) (*models.Order, error)
}

type trackingResolver interface {
	ResolveForTracking(ctx context.Context, rawTracking string) (bool, error)
}

func runScanAPI(ctx context.Context, opts scanAPIOpts, api *scansapi.ScansAPI, store orderCreator, resolver trackingResolver, consumer kafkaConsumer) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
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

	api.Register(r)

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, opts.swaggerPath)
	})
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/swagger.json")))

	httpErr := make(chan error, 1)
	srv := &http.Server{Handler: r}
	go func() {
		slog.Info("HTTP server listening", "addr", lis.Addr().String())
		httpErr <- srv.Serve(lis)
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	go func() {
		slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
		_ = consumer.Consume(ctx, func(_key, value []byte) error {
			return handleOrderImported(ctx, store, resolver, value)
		})
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	}
}

// handleOrderImported создаёт заказ из внешнего импорта и сразу пытается
// закрыть висящее по его треку исключение — чтобы станции не ждали sweep'а.
func handleOrderImported(ctx context.Context, store orderCreator, resolver trackingResolver, value []byte) error {
	var m messages.OrderImported
	if err := json.Unmarshal(value, &m); err != nil {
		return err
	}

	in := models.OrderCreateInput{
		Tracking:      m.Tracking,
		SKU:           m.SKU,
		ItemID:        m.ItemID,
		Title:         m.Title,
		Condition:     m.Condition,
		Quantity:      m.Quantity,
		AccountSource: m.AccountSource,
		OrderDate:     m.OrderDate,
	}
	if m.ExternalOrderID != "" {
		in.ExternalOrderID = &m.ExternalOrderID
	}
	o, err := store.CreateOrder(ctx, in)
	if err != nil {
		return err
	}

	if m.Tracking == "" {
		return nil
	}
	resolved, err := resolver.ResolveForTracking(ctx, m.Tracking)
	if err != nil {
		// Заказ уже создан и закоммичен; не возвращаем ошибку, чтобы
		// consumer не перечитывал сообщение и не плодил дубли.
		slog.Warn("resolve exception after import failed", "order_id", o.ID, "error", err.Error())
		return nil
	}
	if resolved {
		slog.Info("exception resolved by import", "order_id", o.ID)
	}
	return nil
}
