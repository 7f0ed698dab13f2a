package backmarkethttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
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
		baseURL = "https://www.backmarket.fr/ws"
	}
	return &Client{
		baseURL: baseURL,
		httpc: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type bmOrdersResp struct {
	Count   int     `json:"count"`
	Next    *string `json:"next"`
	Results []struct {
		OrderID    json.Number `json:"order_id"`
		DateModif  string      `json:"date_modification"`
		DateCreat  string      `json:"date_creation"`
		Orderlines []struct {
			Listing        string `json:"listing"`
			ProductID      string `json:"product_id"`
			Product        string `json:"product"`
			State          int    `json:"state"`
			Quantity       int32  `json:"quantity"`
			AestheticGrade string `json:"aesthetic_grade"`
		} `json:"orderlines"`
		TrackingNumber string `json:"tracking_number"`
		TrackingURL    string `json:"tracking_url"`
	} `json:"results"`
}

func (c *Client) ListOrders(ctx context.Context, acct marketplace.Account, since time.Time, page, limit int) (marketplace.Page, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return marketplace.Page{}, errors.Wrap(err, "parse base url")
	}
	u.Path = u.Path + "/orders"

	q := u.Query()
	q.Set("date_modification", since.UTC().Format("2006-01-02 15:04:05"))
	q.Set("page", strconv.Itoa(page))
	q.Set("page-size", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return marketplace.Page{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("Authorization", "Basic "+acct.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return marketplace.Page{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return marketplace.Page{}, fmt.Errorf("backmarket auth failed for account %s: http %d", acct.Name, resp.StatusCode)
	}
	if resp.StatusCode/100 != 2 {
		return marketplace.Page{}, fmt.Errorf("backmarket http %d", resp.StatusCode)
	}

	var r bmOrdersResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return marketplace.Page{}, errors.Wrap(err, "decode")
	}

	out := marketplace.Page{HasMore: r.Next != nil && *r.Next != ""}
	for _, o := range r.Results {
		fo := marketplace.FeedOrder{OrderID: o.OrderID.String()}
		if o.TrackingNumber != "" {
			fo.Trackings = append(fo.Trackings, o.TrackingNumber)
		}
		// BackMarket пример: "2014-07-02T19:16:00+00:00"
		if o.DateCreat != "" {
			if ts, err := time.Parse(time.RFC3339, o.DateCreat); err == nil {
				utc := ts.UTC()
				fo.OrderDate = &utc
			}
		}
		if len(o.Orderlines) > 0 {
			l := o.Orderlines[0]
			fo.SKU = l.Listing
			fo.ItemID = l.ProductID
			fo.Title = l.Product
			fo.Condition = l.AestheticGrade
			fo.Quantity = l.Quantity
		}
		out.Orders = append(out.Orders, fo)
	}
	return out, nil
}
