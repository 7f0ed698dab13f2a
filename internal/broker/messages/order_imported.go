package messages

import "time"

// OrderImported публикуется внешним импортом (sheet-import, ручное
// добавление) и потребляется scan-api: создать заказ и сразу попробовать
// закрыть висящее исключение по его треку.
type OrderImported struct {
	ExternalOrderID string     `json:"external_order_id,omitempty"`
	Tracking        string     `json:"tracking"`
	SKU             string     `json:"sku,omitempty"`
	ItemID          string     `json:"item_id,omitempty"`
	Title           string     `json:"title,omitempty"`
	Condition       string     `json:"condition,omitempty"`
	Quantity        int32      `json:"quantity,omitempty"`
	AccountSource   string     `json:"account_source,omitempty"`
	OrderDate       *time.Time `json:"order_date,omitempty"`
}
