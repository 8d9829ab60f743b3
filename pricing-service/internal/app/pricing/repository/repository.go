package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/entity"
)

var (
	ErrStoreNotFound      = errors.New("store not found")
	ErrStoreAlreadyExists = errors.New("store already exists")
	ErrItemNotFound       = errors.New("item not found")
	ErrPriceNotFound      = errors.New("price record not found")
	// ErrVersionConflict - товар изменён другим процессом после чтения
	ErrVersionConflict = errors.New("item version conflict")
)

// StoreRepository - магазины в PostgreSQL (GORM)
type StoreRepository interface {
	Create(ctx context.Context, store *entity.Store) error
	GetByID(ctx context.Context, id string) (*entity.Store, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]entity.Store, error)
	List(ctx context.Context, activeOnly bool) ([]entity.Store, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// PriceChange - одна атомарная запись изменения цен товара.
// Ровно одно из Upsert / RemoveStoreID задано, либо ни одного (только пересчёт метрик).
type PriceChange struct {
	ItemID          string
	ExpectedVersion int64
	Upsert          *entity.PriceRecord
	RemoveStoreID   string
	History         *entity.PriceHistoryEntry
	Metrics         entity.DerivedMetrics
	UpdatedAt       time.Time
}

// ItemRepository - товары, их цены и история цен.
// Реализации: MongoDB (документ на товар) и PostgreSQL (pgx).
type ItemRepository interface {
	Create(ctx context.Context, item *entity.Item) error
	GetByID(ctx context.Context, id string) (*entity.Item, error)
	// Find может вернуть надмножество подходящих товаров
	Find(ctx context.Context, filter entity.ItemFilter) ([]entity.Item, error)
	ListIDs(ctx context.Context) ([]string, error)
	UpdateDetails(ctx context.Context, item *entity.Item) error
	Delete(ctx context.Context, id string) error
	History(ctx context.Context, id string) ([]entity.PriceHistoryEntry, error)
	// ApplyPriceChange записывает цену, историю и метрики одной операцией
	// и увеличивает версию товара. ErrVersionConflict, если версия не совпала.
	ApplyPriceChange(ctx context.Context, change PriceChange) error
}
