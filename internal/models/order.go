package models

import "time"

// Статусы заказа (свободный текст в БД, но код оперирует этими константами).
const (
	OrderStatusNew       = "NEW"
	OrderStatusTested    = "TESTED"
	OrderStatusPacked    = "PACKED"
	OrderStatusShipped   = "SHIPPED"
	OrderStatusException = "EXCEPTION"
)

// Order — каноническая запись отправления. Tracking хранится «как есть»:
// это единственный надёжный ключ между подсистемами, при этом он не обязан
// быть ни уникальным, ни нормализованным.
type Order struct {
	ID              uint64
	ExternalOrderID *string
	Tracking        string
	SKU             string
	ItemID          string
	Title           string
	Condition       string
	Quantity        int32
	Status          string
	Shipped         bool
	PackerID        *uint64
	TesterID        *uint64
	AccountSource   string
	OrderDate       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type OrderCreateInput struct {
	ExternalOrderID *string
	Tracking        string
	SKU             string
	ItemID          string
	Title           string
	Condition       string
	Quantity        int32
	AccountSource   string
	OrderDate       *time.Time
}

// StatusChange — одна строка append-only журнала смены статусов заказа.
type StatusChange struct {
	ID          uint64
	OrderID     uint64
	Status      string
	PriorStatus string
	Actor       string
	CreatedAt   time.Time
}

// FeedPatch — поля, которые фид маркетплейса может дописать в заказ.
// Каждое применяется только если колонка в БД пустая (fill-only-if-blank).
type FeedPatch struct {
	ExternalOrderID string
	SKU             string
	ItemID          string
	Title           string
	Condition       string
	Quantity        int32
	AccountSource   string
	OrderDate       *time.Time
}
