package entity

import "time"

// CreateStoreRequest - тело POST /stores
type CreateStoreRequest struct {
	Name      string    `json:"name" validate:"required,max=100"`
	Kind      StoreKind `json:"kind" validate:"omitempty,oneof=online offline both"`
	LogoURL   string    `json:"logo_url" validate:"omitempty,url"`
	Website   string    `json:"website" validate:"omitempty,url"`
	Address   string    `json:"address" validate:"max=255"`
	City      string    `json:"city" validate:"max=100"`
	Latitude  *float64  `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64  `json:"longitude" validate:"omitempty,longitude"`
}

// PriceInput - цена одного магазина при создании товара
type PriceInput struct {
	StoreID       string   `json:"store_id" validate:"required"`
	CurrentPrice  float64  `json:"current_price"`
	OriginalPrice *float64 `json:"original_price"`
	InStock       *bool    `json:"in_stock"`
}

// CreateItemRequest - тело POST /items.
// Производные поля (average_price, deal_score и т.д.) не принимаются.
type CreateItemRequest struct {
	Name     string       `json:"name" validate:"required,max=200"`
	Category string       `json:"category" validate:"max=100"`
	Brand    string       `json:"brand" validate:"max=100"`
	Unit     string       `json:"unit" validate:"max=50"`
	ImageURL string       `json:"image_url" validate:"omitempty,url"`
	Tags     []string     `json:"tags" validate:"omitempty,dive,required,max=50"`
	Prices   []PriceInput `json:"prices" validate:"omitempty,dive"`
}

// UpdateItemRequest - частичное обновление описания товара, цены меняются отдельными эндпоинтами
type UpdateItemRequest struct {
	Name     string    `json:"name" validate:"max=200"`
	Category string    `json:"category" validate:"max=100"`
	Brand    *string   `json:"brand" validate:"omitempty,max=100"`
	Unit     *string   `json:"unit" validate:"omitempty,max=50"`
	ImageURL *string   `json:"image_url" validate:"omitempty,url"`
	Tags     *[]string `json:"tags"`
}

// UpsertPriceRequest - тело PUT /items/:id/prices/:store_id
type UpsertPriceRequest struct {
	CurrentPrice  float64  `json:"current_price"`
	OriginalPrice *float64 `json:"original_price"`
	InStock       *bool    `json:"in_stock"`
}

// PriceSubmission - новое предложение магазина, поступившее от администратора, сидера или из Kafka
type PriceSubmission struct {
	ItemID        string
	StoreID       string
	CurrentPrice  float64
	OriginalPrice *float64
	InStock       bool
}

// ItemSummary - идентификационные поля товара без цен
type ItemSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Brand    string `json:"brand"`
	Unit     string `json:"unit"`
	ImageURL string `json:"image_url"`
}

// ComparedPrice - запись цены с названием магазина для экрана сравнения
type ComparedPrice struct {
	PriceRecord
	StoreName string `json:"store_name"`
}

// PriceComparison - ответ comparePrices, кешируется в Redis
type PriceComparison struct {
	Item          ItemSummary     `json:"item"`
	Prices        []ComparedPrice `json:"prices"`
	CheapestPrice *float64        `json:"cheapest_price"`
	CheapestStore *string         `json:"cheapest_store"`
	AveragePrice  *float64        `json:"average_price"`
}

// ItemResponse - товар в ответах API: цены отсортированным списком, метрики на верхнем уровне
type ItemResponse struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Category string        `json:"category"`
	Brand    string        `json:"brand"`
	Unit     string        `json:"unit"`
	ImageURL string        `json:"image_url"`
	Tags     []string      `json:"tags"`
	Prices   []PriceRecord `json:"prices"`
	DerivedMetrics
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewItemResponse(item *Item) ItemResponse {
	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}
	return ItemResponse{
		ID:             item.ID,
		Name:           item.Name,
		Category:       item.Category,
		Brand:          item.Brand,
		Unit:           item.Unit,
		ImageURL:       item.ImageURL,
		Tags:           tags,
		Prices:         item.SortedPrices(),
		DerivedMetrics: item.DerivedMetrics,
		CreatedAt:      item.CreatedAt,
		UpdatedAt:      item.UpdatedAt,
	}
}

func NewItemResponses(items []Item) []ItemResponse {
	responses := make([]ItemResponse, 0, len(items))
	for i := range items {
		responses = append(responses, NewItemResponse(&items[i]))
	}
	return responses
}

type Pagination struct {
	CurrentPage  int `json:"current_page"`
	TotalPages   int `json:"total_pages"`
	TotalItems   int `json:"total_items"`
	ItemsPerPage int `json:"items_per_page"`
}

type SearchResponse struct {
	Items      []ItemResponse `json:"items"`
	Pagination Pagination     `json:"pagination"`
}

type StoreListResponse struct {
	Stores []Store `json:"stores"`
	Total  int     `json:"total"`
}

type FeaturedDealsResponse struct {
	Items []ItemResponse `json:"items"`
	Total int            `json:"total"`
}

type PriceListResponse struct {
	ItemID string        `json:"item_id"`
	Prices []PriceRecord `json:"prices"`
}

type PriceHistoryResponse struct {
	ItemID  string              `json:"item_id"`
	History []PriceHistoryEntry `json:"history"`
}

type RecomputeResponse struct {
	Item     ItemResponse `json:"item"`
	Repaired bool         `json:"repaired"`
}
