package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Qirrat098/ShopSmart/pkg/metrics"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/entity"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/util"

	"github.com/rs/zerolog"
)

const (
	invalidateAttempts   = 3
	invalidateTimeout    = 2 * time.Second
	invalidateRetryDelay = 100 * time.Millisecond
)

// notifier выполняет побочные эффекты после записи: сброс кеша и событие в Kafka.
// Ошибки только логируются, изменение уже сохранено.
type notifier struct {
	cache      util.ViewCache
	publisher  util.MessagePublisher
	log        zerolog.Logger
	retryDelay time.Duration
}

func newNotifier(cache util.ViewCache, publisher util.MessagePublisher, log zerolog.Logger) *notifier {
	return &notifier{cache: cache, publisher: publisher, log: log, retryDelay: invalidateRetryDelay}
}

// itemChanged сбрасывает закешированные представления товара. Сброс не зависит
// от отмены запроса. Если все попытки неудачны, представления живут до истечения TTL.
func (n *notifier) itemChanged(ctx context.Context, itemID string) {
	if n.cache == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	var err error
	for attempt := 1; attempt <= invalidateAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, invalidateTimeout)
		err = n.cache.InvalidateItem(attemptCtx, itemID)
		cancel()
		if err == nil {
			return
		}
		if attempt < invalidateAttempts {
			time.Sleep(n.retryDelay)
		}
	}

	metrics.CacheInvalidationFailures.Inc()
	n.log.Error().Err(err).
		Str("item_id", itemID).
		Int("attempts", invalidateAttempts).
		Msg("failed to invalidate cached views, they stay stale until TTL expires")
}

func (n *notifier) publish(ctx context.Context, event entity.PriceEvent) {
	if n.publisher == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		n.log.Warn().Err(err).Str("item_id", event.ItemID).Msg("failed to marshal price event")
		return
	}

	if err := n.publisher.PublishMessage(ctx, event.ItemID, payload); err != nil {
		n.log.Warn().Err(err).
			Str("item_id", event.ItemID).
			Str("event_type", event.EventType).
			Msg("failed to publish price event")
	}
}
