package refurbedhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/BearBump/ScanDock/internal/integrations/marketplace"
	"github.com/pkg/errors"
)

type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.refurbed.com"
	}
	return &Client{
		baseURL: baseURL,
		httpc: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Refurbed API — gRPC-gateway поверх JSON POST: фильтр и пагинация в теле.
type rfListReq struct {
	Filter struct {
		UpdatedAt struct {
			GE string `json:"ge"`
		} `json:"updated_at"`
	} `json:"filter"`
	Pagination struct {
		Limit   int    `json:"limit"`
		StartID string `json:"starting_after,omitempty"`
	} `json:"pagination"`
}

type rfListResp struct {
	Orders []struct {
		ID         string `json:"id"`
		ReleasedAt string `json:"released_at"`
		State      string `json:"state"`
		Items      []struct {
			ID         string `json:"id"`
			SKU        string `json:"sku"`
			Name       string `json:"name"`
			Grading    string `json:"grading"`
			ItemNumber string `json:"item_number"`
		} `json:"items"`
		Parcels []struct {
			TrackingNumber string `json:"tracking_number"`
		} `json:"parcels"`
	} `json:"orders"`
	HasMore bool `json:"has_more"`
}

func (c *Client) ListOrders(ctx context.Context, acct marketplace.Account, since time.Time, page, limit int) (marketplace.Page, error) {
	var body rfListReq
	body.Filter.UpdatedAt.GE = since.UTC().Format(time.RFC3339)
	body.Pagination.Limit = limit

	b, err := json.Marshal(body)
	if err != nil {
		return marketplace.Page{}, errors.Wrap(err, "marshal request")
	}

	// У Refurbed курсорная пагинация без номера страницы. Эмулируем page/limit:
	// запрашиваем limit*page и отбрасываем первые (page-1)*limit заказов.
	// Дёшево, пока maxPages маленький (у нас это backfill, не hot path).
	if page > 1 {
		body.Pagination.Limit = limit * page
		if b, err = json.Marshal(body); err != nil {
			return marketplace.Page{}, errors.Wrap(err, "marshal request")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/refb.merchant.v1.OrderService/ListOrders", bytes.NewReader(b))
	if err != nil {
		return marketplace.Page{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("Authorization", "Plain "+acct.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return marketplace.Page{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return marketplace.Page{}, fmt.Errorf("refurbed auth failed for account %s: http %d", acct.Name, resp.StatusCode)
	}
	if resp.StatusCode/100 != 2 {
		return marketplace.Page{}, fmt.Errorf("refurbed http %d", resp.StatusCode)
	}

	var r rfListResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return marketplace.Page{}, errors.Wrap(err, "decode")
	}

	out := marketplace.Page{HasMore: r.HasMore}
	skip := (page - 1) * limit
	for i, o := range r.Orders {
		if i < skip {
			continue
		}
		fo := marketplace.FeedOrder{OrderID: o.ID}
		for _, p := range o.Parcels {
			if p.TrackingNumber != "" {
				fo.Trackings = append(fo.Trackings, p.TrackingNumber)
			}
		}
		if o.ReleasedAt != "" {
			if ts, err := time.Parse(time.RFC3339, o.ReleasedAt); err == nil {
				utc := ts.UTC()
				fo.OrderDate = &utc
			}
		}
		if len(o.Items) > 0 {
			it := o.Items[0]
			fo.SKU = it.SKU
			fo.ItemID = it.ItemNumber
			fo.Title = it.Name
			fo.Condition = it.Grading
			fo.Quantity = int32(len(o.Items))
		}
		out.Orders = append(out.Orders, fo)
	}
	return out, nil
}
