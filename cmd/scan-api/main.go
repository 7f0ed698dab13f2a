package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/ScanDock/config"
	scansapi "github.com/BearBump/ScanDock/internal/api/scans_api"
	"github.com/BearBump/ScanDock/internal/broker/kafka"
	"github.com/BearBump/ScanDock/internal/cache/rediscache"
	"github.com/BearBump/ScanDock/internal/services/exceptions"
	"github.com/BearBump/ScanDock/internal/services/matcher"
	"github.com/BearBump/ScanDock/internal/services/scans"
	"github.com/BearBump/ScanDock/internal/storage/pgorders"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.ScanDock.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.ScanDock.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "scan-api"
	}
	topic := cfg.Kafka.OrdersImportedTopicName
	if topic == "" {
		topic = "orders.imported"
	}
	cacheTTL := time.Duration(cfg.ScanDock.LookupCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)
	defer st.Close()

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)

	m := matcher.New(st)
	queue := exceptions.New(st, m)
	sinks := scans.NewSinkRegistry(scans.NewTableSink(st), st)
	svc := scans.New(m, queue, st, sinks, rc, cacheTTL)
	api := scansapi.New(svc, queue, st)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	consumer := kafka.NewConsumer(brokers, topic, consumerGroup)
	defer func() { _ = consumer.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := runScanAPI(ctx, scanAPIOpts{
		httpAddr:      httpAddr,
		swaggerPath:   os.Getenv("swaggerPath"),
		topic:         topic,
		consumerGroup: consumerGroup,
	}, api, st, queue, consumer); err != nil && err != context.Canceled {
		panic(err)
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgorders.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgorders.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}
