package service

import (
	"context"
	"iter"

	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/entity"
)

type PriceServiceInterface interface {
	UpsertPrice(ctx context.Context, submission entity.PriceSubmission) (*entity.Item, error)
	RemovePrice(ctx context.Context, itemID, storeID string) (*entity.Item, error)
	ListPrices(ctx context.Context, itemID string) (iter.Seq[entity.PriceRecord], error)
	History(ctx context.Context, itemID string) ([]entity.PriceHistoryEntry, error)
	Recompute(ctx context.Context, itemID string) (*entity.Item, bool, error)
	ReconcileAll(ctx context.Context) (int, error)
}

type QueryServiceInterface interface {
	GetItem(ctx context.Context, id string) (*entity.Item, error)
	Search(ctx context.Context, query entity.SearchQuery) (*entity.SearchResult, error)
	FeaturedDeals(ctx context.Context, limit int) ([]entity.Item, error)
	ComparePrices(ctx context.Context, itemID string) (*entity.PriceComparison, error)
}

type CatalogServiceInterface interface {
	CreateStore(ctx context.Context, req *entity.CreateStoreRequest) (*entity.Store, error)
	GetStore(ctx context.Context, id string) (*entity.Store, error)
	ListStores(ctx context.Context) ([]entity.Store, error)
	DeactivateStore(ctx context.Context, id string) error
	ActivateStore(ctx context.Context, id string) error

	CreateItem(ctx context.Context, req *entity.CreateItemRequest) (*entity.Item, error)
	UpdateItem(ctx context.Context, id string, req *entity.UpdateItemRequest) (*entity.Item, error)
	DeleteItem(ctx context.Context, id string) error
}
