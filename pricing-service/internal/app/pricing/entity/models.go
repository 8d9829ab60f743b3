package entity

import (
	"sort"
	"time"
)

// DefaultCategory присваивается товару без категории
const DefaultCategory = "General"

type StoreKind string

const (
	StoreKindOnline  StoreKind = "online"
	StoreKindOffline StoreKind = "offline"
	StoreKindBoth    StoreKind = "both"
)

func (k StoreKind) Valid() bool {
	switch k {
	case StoreKindOnline, StoreKindOffline, StoreKindBoth:
		return true
	}
	return false
}

// Store - магазин (таблица stores в PostgreSQL)
// После создания меняется только флаг активности
type Store struct {
	ID        string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	Name      string    `json:"name" gorm:"type:varchar(100);not null;uniqueIndex"`
	Kind      StoreKind `json:"kind" gorm:"type:varchar(16);not null"`
	LogoURL   string    `json:"logo_url,omitempty"`
	Website   string    `json:"website,omitempty"`
	Address   string    `json:"address,omitempty"`
	City      string    `json:"city,omitempty"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	IsActive  bool      `json:"is_active" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Store) TableName() string {
	return "stores"
}

// PriceRecord - текущее предложение одного магазина по товару.
// На пару (товар, магазин) существует не больше одной записи.
type PriceRecord struct {
	StoreID       string    `json:"store_id" bson:"store_id"`
	CurrentPrice  float64   `json:"current_price" bson:"current_price"`
	OriginalPrice float64   `json:"original_price" bson:"original_price"`
	Discount      float64   `json:"discount" bson:"discount"`
	InStock       bool      `json:"in_stock" bson:"in_stock"`
	LastUpdated   time.Time `json:"last_updated" bson:"last_updated"`
}

// PriceHistoryEntry хранит вытесненную цену и момент, когда она была установлена
type PriceHistoryEntry struct {
	StoreID    string    `json:"store_id" bson:"store_id"`
	Price      float64   `json:"price" bson:"price"`
	RecordedAt time.Time `json:"recorded_at" bson:"recorded_at"`
}

// DerivedMetrics вычисляются только из набора PriceRecord товара.
// nil в ценовых полях означает "нет предложений".
type DerivedMetrics struct {
	CheapestPrice *float64 `json:"cheapest_price" bson:"cheapest_price"`
	CheapestStore *string  `json:"cheapest_store" bson:"cheapest_store"`
	AveragePrice  *float64 `json:"average_price" bson:"average_price"`
	LowestPrice   *float64 `json:"lowest_price" bson:"lowest_price"`
	HighestPrice  *float64 `json:"highest_price" bson:"highest_price"`
	DealScore     float64  `json:"deal_score" bson:"deal_score"`
	IsOnSale      bool     `json:"is_on_sale" bson:"is_on_sale"`
}

func (m DerivedMetrics) Equal(other DerivedMetrics) bool {
	return equalFloatPtr(m.CheapestPrice, other.CheapestPrice) &&
		equalStringPtr(m.CheapestStore, other.CheapestStore) &&
		equalFloatPtr(m.AveragePrice, other.AveragePrice) &&
		equalFloatPtr(m.LowestPrice, other.LowestPrice) &&
		equalFloatPtr(m.HighestPrice, other.HighestPrice) &&
		m.DealScore == other.DealScore &&
		m.IsOnSale == other.IsOnSale
}

// Item - товар с ценами по магазинам.
// Prices - map по store ID, метрики хранятся вместе с документом (поле metrics)
// и переписываются целиком при каждом изменении цен.
type Item struct {
	ID             string                 `json:"id" bson:"_id"`
	Name           string                 `json:"name" bson:"name"`
	Category       string                 `json:"category" bson:"category"`
	Brand          string                 `json:"brand" bson:"brand"`
	Unit           string                 `json:"unit" bson:"unit"`
	ImageURL       string                 `json:"image_url" bson:"image_url"`
	Tags           []string               `json:"tags" bson:"tags"`
	Prices         map[string]PriceRecord `json:"-" bson:"prices"`
	DerivedMetrics `bson:"metrics"`
	Version        int64     `json:"-" bson:"version"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" bson:"updated_at"`
}

// SortedPrices возвращает цены по возрастанию, при равенстве по store ID
func (i *Item) SortedPrices() []PriceRecord {
	return SortPriceRecords(i.Prices)
}

func (i *Item) HasOffers() bool {
	return len(i.Prices) > 0
}

func SortPriceRecords(prices map[string]PriceRecord) []PriceRecord {
	records := make([]PriceRecord, 0, len(prices))
	for _, record := range prices {
		records = append(records, record)
	}
	SortByPrice(records)
	return records
}

func SortByPrice(records []PriceRecord) {
	sort.Slice(records, func(a, b int) bool {
		if records[a].CurrentPrice != records[b].CurrentPrice {
			return records[a].CurrentPrice < records[b].CurrentPrice
		}
		return records[a].StoreID < records[b].StoreID
	})
}

// ClonePrices копирует map цен, чтобы изменения не затрагивали прочитанный товар
func ClonePrices(prices map[string]PriceRecord) map[string]PriceRecord {
	clone := make(map[string]PriceRecord, len(prices)+1)
	for storeID, record := range prices {
		clone[storeID] = record
	}
	return clone
}

func equalFloatPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
