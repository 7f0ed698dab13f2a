package marketplace

import (
	"context"
	"time"
)

// Account — один аккаунт продавца на маркетплейсе. Токен приходит из
// конфига; его получение/refresh — вне этого сервиса.
type Account struct {
	Name  string
	Token string
}

// FeedOrder — нормализованный взгляд на один заказ из фида. Живёт только
// в течение прохода реконсиляции, в БД в таком виде не сохраняется.
type FeedOrder struct {
	OrderID   string
	Trackings []string
	SKU       string
	ItemID    string
	Title     string
	Condition string
	Quantity  int32
	OrderDate *time.Time
}

// Page — одна страница фида "orders modified since".
type Page struct {
	Orders  []FeedOrder
	HasMore bool
}

type Client interface {
	// ListOrders возвращает страницу заказов аккаунта, изменённых после since.
	// page начинается с 1.
	ListOrders(ctx context.Context, acct Account, since time.Time, page, limit int) (Page, error)
}
