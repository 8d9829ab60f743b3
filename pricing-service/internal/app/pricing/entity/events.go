package entity

import "time"

const (
	EventPriceUpdated = "PRICE_UPDATED"
	EventPriceRemoved = "PRICE_REMOVED"
	EventItemDeleted  = "ITEM_DELETED"
)

// PriceEvent публикуется в топик price_events после каждого изменения цен.
// Key сообщения - ItemID.
type PriceEvent struct {
	EventType string         `json:"event_type"`
	ItemID    string         `json:"item_id"`
	StoreID   string         `json:"store_id,omitempty"`
	Record    *PriceRecord   `json:"record,omitempty"`
	Metrics   DerivedMetrics `json:"metrics"`
	Timestamp time.Time      `json:"timestamp"`
}

// PriceObservation - входящее сообщение из топика price_observations
type PriceObservation struct {
	ItemID        string   `json:"item_id"`
	StoreID       string   `json:"store_id"`
	CurrentPrice  float64  `json:"current_price"`
	OriginalPrice *float64 `json:"original_price,omitempty"`
	InStock       *bool    `json:"in_stock,omitempty"`
}

func (o PriceObservation) Submission() PriceSubmission {
	inStock := true
	if o.InStock != nil {
		inStock = *o.InStock
	}
	return PriceSubmission{
		ItemID:        o.ItemID,
		StoreID:       o.StoreID,
		CurrentPrice:  o.CurrentPrice,
		OriginalPrice: o.OriginalPrice,
		InStock:       inStock,
	}
}
