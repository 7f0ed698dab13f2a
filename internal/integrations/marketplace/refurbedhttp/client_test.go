package refurbedhttp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BearBump/ScanDock/internal/integrations/marketplace"
	"github.com/stretchr/testify/require"
)

const rfBody = `{
  "orders": [
    {
      "id": "RF-1",
      "released_at": "2025-07-02T19:16:00Z",
      "state": "SHIPPED",
      "items": [{"id": "i1", "sku": "GAL-S21", "name": "Galaxy S21", "grading": "B", "item_number": "IT-9"}],
      "parcels": [{"tracking_number": "1Z-999-AA1-0123456784"}]
    },
    {
      "id": "RF-2",
      "items": [],
      "parcels": []
    }
  ],
  "has_more": false
}`

func TestClient_ListOrders(t *testing.T) {
	var gotAuth string
	var gotReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotReq)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(rfBody))
	}))
	defer srv.Close()

	c := New(srv.URL)
	page, err := c.ListOrders(context.Background(), marketplace.Account{Name: "rf-de", Token: "tok"}, time.Now().Add(-48*time.Hour), 1, 100)
	require.NoError(t, err)
	require.Equal(t, "Plain tok", gotAuth)
	require.NotNil(t, gotReq["filter"])
	require.False(t, page.HasMore)
	require.Len(t, page.Orders, 2)

	first := page.Orders[0]
	require.Equal(t, "RF-1", first.OrderID)
	require.Equal(t, []string{"1Z-999-AA1-0123456784"}, first.Trackings)
	require.Equal(t, "GAL-S21", first.SKU)
	require.Equal(t, "B", first.Condition)
}

func TestClient_ListOrders_PageTwoSkipsFirstPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(rfBody))
	}))
	defer srv.Close()

	c := New(srv.URL)
	page, err := c.ListOrders(context.Background(), marketplace.Account{Name: "rf-de", Token: "tok"}, time.Now(), 2, 1)
	require.NoError(t, err)
	// limit=1, page=2: первый заказ отброшен, остался RF-2
	require.Len(t, page.Orders, 1)
	require.Equal(t, "RF-2", page.Orders[0].OrderID)
}

func TestClient_ListOrders_AuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.ListOrders(context.Background(), marketplace.Account{Name: "rf-de", Token: "bad"}, time.Now(), 1, 10)
	require.Error(t, err)
	require.Contains(t, err.Error(), "auth failed")
}
