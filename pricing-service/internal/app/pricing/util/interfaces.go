package util

import (
	"context"
	"time"

	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/entity"
)

// ViewCache кеширует представления для чтения (сравнение цен, featured deals).
// Ключи содержат поколение: запись под устаревшим поколением никогда не будет прочитана,
// InvalidateItem переводит поколения товара и списка сделок вперёд.
type ViewCache interface {
	GetComparison(ctx context.Context, itemID string) (*entity.PriceComparison, int64, error)
	SetComparison(ctx context.Context, itemID string, generation int64, comparison *entity.PriceComparison, ttl time.Duration) error
	GetFeaturedDeals(ctx context.Context, limit int) ([]entity.Item, int64, error)
	SetFeaturedDeals(ctx context.Context, limit int, generation int64, items []entity.Item, ttl time.Duration) error
	InvalidateItem(ctx context.Context, itemID string) error
	Close() error
}

// MessagePublisher интерфейс для отправки сообщений в очередь (Kafka)
type MessagePublisher interface {
	PublishMessage(ctx context.Context, key string, value []byte) error
	Close() error
}
