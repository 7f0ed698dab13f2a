package fake

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/BearBump/ScanDock/internal/integrations/marketplace"
)

// FakeClient — детерминированный фид для локальной разработки и тестов:
// по (account, page) генерирует стабильный набор заказов, часть — без трека.
type FakeClient struct {
	PageSize int
	Pages    int
}

func New() *FakeClient { return &FakeClient{PageSize: 5, Pages: 2} }

func (f *FakeClient) ListOrders(ctx context.Context, acct marketplace.Account, since time.Time, page, limit int) (marketplace.Page, error) {
	if page > f.Pages {
		return marketplace.Page{}, nil
	}
	size := f.PageSize
	if limit > 0 && limit < size {
		size = limit
	}

	out := marketplace.Page{HasMore: page < f.Pages}
	for i := 0; i < size; i++ {
		n := (page-1)*size + i
		id := fmt.Sprintf("%s-%04d", acct.Name, n)

		h := fnv.New32a()
		_, _ = h.Write([]byte(id))
		v := h.Sum32()

		fo := marketplace.FeedOrder{
			OrderID:   id,
			SKU:       fmt.Sprintf("SKU-%03d", v%500),
			Title:     "fake feed item",
			Condition: "B",
			Quantity:  1,
		}
		// каждый четвёртый заказ ещё не отгружен — трека нет
		if v%4 != 0 {
			fo.Trackings = []string{fmt.Sprintf("94001118992231%08d", v%100000000)}
		}
		d := since.Add(time.Duration(n) * time.Hour)
		fo.OrderDate = &d
		out.Orders = append(out.Orders, fo)
	}
	return out, nil
}
