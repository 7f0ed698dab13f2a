package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	scansapi "github.com/BearBump/ScanDock/internal/api/scans_api"
	"github.com/BearBump/ScanDock/internal/models"
	"github.com/BearBump/ScanDock/internal/services/exceptions"
	"github.com/BearBump/ScanDock/internal/services/scans"
	"github.com/stretchr/testify/require"
)

type fakeScanSvc struct{}

func (fakeScanSvc) LookupTracking(ctx context.Context, in scans.LookupInput) (scans.LookupResult, error) {
	return scans.LookupResult{}, nil
}
func (fakeScanSvc) AppendSerial(ctx context.Context, raw, serial string, techID *uint64) (scans.AppendSerialResult, error) {
	return scans.AppendSerialResult{}, nil
}
func (fakeScanSvc) ConfirmPack(ctx context.Context, raw string, packerID *uint64, packerName *string) (scans.PackResult, error) {
	return scans.PackResult{}, nil
}
func (fakeScanSvc) IngestSKUScan(ctx context.Context, raw string, station models.Station) (scans.SkuScanResult, error) {
	return scans.SkuScanResult{}, nil
}

type fakeSweeper struct{}

func (fakeSweeper) ReconcileAll(ctx context.Context) (exceptions.SweepStats, error) {
	return exceptions.SweepStats{}, nil
}

type fakeStore struct {
	created []models.OrderCreateInput
	err     error
}

func (f *fakeStore) CreateOrder(ctx context.Context, in models.OrderCreateInput) (*models.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, in)
	return &models.Order{ID: uint64(len(f.created)), Tracking: in.Tracking}, nil
}
func (f *fakeStore) ListOpenExceptions(ctx context.Context) ([]*models.OrderException, error) {
	return nil, nil
}
func (f *fakeStore) ListStatusChanges(ctx context.Context, orderID uint64) ([]*models.StatusChange, error) {
	return nil, nil
}

type fakeResolver struct {
	calls    []string
	resolved bool
}

func (f *fakeResolver) ResolveForTracking(ctx context.Context, raw string) (bool, error) {
	f.calls = append(f.calls, raw)
	return f.resolved, nil
}

type fakeConsumer struct{}

func (fakeConsumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRunScanAPI_SwaggerAndHealthServed(t *testing.T) {
	dir := t.TempDir()
	sw := filepath.Join(dir, "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))

	api := scansapi.New(fakeScanSvc{}, fakeSweeper{}, &fakeStore{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runScanAPI(ctx, scanAPIOpts{
			httpAddr:      "127.0.0.1:0",
			swaggerPath:   sw,
			topic:         "orders.imported",
			consumerGroup: "scan-api",
			onListen:      func(addr string) { addrCh <- addr },
		}, api, &fakeStore{}, &fakeResolver{}, fakeConsumer{})
	}()

	addr := <-addrCh

	resp, err := http.Get("http://" + addr + "/swagger.json")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	resp, err = http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	cancel()
	select {
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting server to stop")
	case err := <-errCh:
		require.Error(t, err)
	}
}

func TestRunScanAPI_SwaggerRequired(t *testing.T) {
	err := runScanAPI(context.Background(), scanAPIOpts{httpAddr: "127.0.0.1:0"},
		nil, nil, nil, fakeConsumer{})
	require.Error(t, err)
}

func TestHandleOrderImported_CreatesAndResolves(t *testing.T) {
	st := &fakeStore{}
	rs := &fakeResolver{resolved: true}

	b, err := json.Marshal(map[string]any{
		"external_order_id": "ORD-7",
		"tracking":          "9400111899223197428170",
		"sku":               "IPH12",
		"quantity":          1,
		"account_source":    "sheet-import",
	})
	require.NoError(t, err)

	require.NoError(t, handleOrderImported(context.Background(), st, rs, b))
	require.Len(t, st.created, 1)
	require.NotNil(t, st.created[0].ExternalOrderID)
	require.Equal(t, "ORD-7", *st.created[0].ExternalOrderID)
	require.Equal(t, []string{"9400111899223197428170"}, rs.calls)
}

func TestHandleOrderImported_NoTrackingSkipsResolve(t *testing.T) {
	st := &fakeStore{}
	rs := &fakeResolver{}

	require.NoError(t, handleOrderImported(context.Background(), st, rs,
		[]byte(`{"external_order_id":"ORD-8"}`)))
	require.Len(t, st.created, 1)
	require.Empty(t, rs.calls)
}

func TestHandleOrderImported_BadJSON(t *testing.T) {
	require.Error(t, handleOrderImported(context.Background(), &fakeStore{}, &fakeResolver{}, []byte("{")))
}
