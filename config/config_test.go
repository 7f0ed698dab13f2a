package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  orders_imported_topic_name: "orders.imported"
  feed_sync_completed_topic_name: "feedsync.completed"
redis:
  host: "localhost"
  port: 6379
scandock:
  http_addr: ":8080"
  kafka_consumer_group: "scan-api"
  lookup_cache_ttl_seconds: 600
  worker_http_addr: ":8082"
  worker_allowed_origins:
    - "https://ops.example.com"
  worker_sync_interval_seconds: 1800
marketplaces:
  - name: "backmarket"
    base_url: "https://www.backmarket.fr/ws"
    accounts:
      - name: "bm-fr"
        token: "bm-token"
  - name: "refurbed"
    base_url: "https://api.refurbed.com"
    accounts:
      - name: "rf-de"
        token: "rf-token"
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "orders.imported", cfg.Kafka.OrdersImportedTopicName)
	require.Equal(t, "feedsync.completed", cfg.Kafka.FeedSyncCompletedTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, ":8080", cfg.ScanDock.HTTPAddr)
	require.Equal(t, []string{"https://ops.example.com"}, cfg.ScanDock.WorkerAllowedOrigins)
	require.Len(t, cfg.Marketplaces, 2)
	require.Equal(t, "refurbed", cfg.Marketplaces[1].Name)
	require.Equal(t, "rf-token", cfg.Marketplaces[1].Accounts[0].Token)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
