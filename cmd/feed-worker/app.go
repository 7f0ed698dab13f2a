package main

import (
	"context"
	"fmt"
	"time"

	"github.com/BearBump/ScanDock/config"
	"github.com/BearBump/ScanDock/internal/broker/kafka"
	"github.com/BearBump/ScanDock/internal/cache/rediscache"
	"github.com/BearBump/ScanDock/internal/integrations/marketplace"
	"github.com/BearBump/ScanDock/internal/integrations/marketplace/backmarkethttp"
	"github.com/BearBump/ScanDock/internal/integrations/marketplace/fake"
	"github.com/BearBump/ScanDock/internal/integrations/marketplace/refurbedhttp"
	"github.com/BearBump/ScanDock/internal/services/exceptions"
	"github.com/BearBump/ScanDock/internal/services/feedsync"
	"github.com/BearBump/ScanDock/internal/services/matcher"
	"github.com/BearBump/ScanDock/internal/storage/pgorders"
	"github.com/pkg/errors"
)

type workerFactories struct {
	newStorage     func(cfg *config.Config) (repo feedsync.Repository, mrepo matcher.Repository, erepo exceptions.Repository, closeFn func(), err error)
	newProducer    func(cfg *config.Config) feedsync.Producer
	newRateLimiter func(cfg *config.Config) feedsync.RateLimiter
	newMarkets     func(cfg *config.Config) ([]feedsync.Market, error)
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (feedsync.Repository, matcher.Repository, exceptions.Repository, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgorders.New(connString)
			if err != nil {
				return nil, nil, nil, nil, err
			}
			return st, st, st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) feedsync.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) feedsync.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newMarkets: func(cfg *config.Config) ([]feedsync.Market, error) {
			return buildMarkets(cfg.Marketplaces)
		},
	}
}

// buildMarkets собирает клиентов фидов из конфига. "fake" — детерминированный
// генератор для стендов, внешних вызовов не делает.
func buildMarkets(mcs []config.MarketplaceConfig) ([]feedsync.Market, error) {
	out := make([]feedsync.Market, 0, len(mcs))
	for _, mc := range mcs {
		var client marketplace.Client
		switch mc.Name {
		case "backmarket":
			client = backmarkethttp.New(mc.BaseURL)
		case "refurbed":
			client = refurbedhttp.New(mc.BaseURL)
		case "fake":
			client = fake.New()
		default:
			return nil, errors.Errorf("unknown marketplace %q in config", mc.Name)
		}

		accounts := make([]marketplace.Account, 0, len(mc.Accounts))
		for _, ac := range mc.Accounts {
			accounts = append(accounts, marketplace.Account{Name: ac.Name, Token: ac.Token})
		}
		out = append(out, feedsync.Market{Name: mc.Name, Client: client, Accounts: accounts})
	}
	return out, nil
}

func RunFeedWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	topic := cfg.Kafka.FeedSyncCompletedTopicName
	if topic == "" {
		topic = "feedsync.completed"
	}

	syncInterval := time.Duration(cfg.ScanDock.WorkerSyncIntervalSeconds) * time.Second
	if syncInterval <= 0 {
		syncInterval = 30 * time.Minute
	}

	repo, mrepo, erepo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	markets, err := f.newMarkets(cfg)
	if err != nil {
		return err
	}

	producer := f.newProducer(cfg)
	rl := f.newRateLimiter(cfg)
	m := matcher.New(mrepo)
	sweeper := exceptions.New(erepo, m)

	r := feedsync.New(repo, m, rl, producer, topic, markets).
		WithSettings(syncInterval,
			cfg.ScanDock.WorkerLookbackDays,
			cfg.ScanDock.WorkerLimitPerPage,
			cfg.ScanDock.WorkerMaxPages,
			int64(cfg.ScanDock.WorkerRateLimitPerMinute))

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:       cfg.ScanDock.WorkerHTTPAddr,
			swaggerPath:    swaggerPathFromEnv(),
			allowedOrigins: cfg.ScanDock.WorkerAllowedOrigins,
			reconciler:     r,
			sweeper:        sweeper,
			cfg:            cfg,
		})
	}()

	runErr := make(chan error, 1)
	go func() {
		runErr <- r.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	case err := <-runErr:
		return err
	}
}
