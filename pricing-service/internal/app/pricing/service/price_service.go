package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/Qirrat098/ShopSmart/pkg/logger"
	"github.com/Qirrat098/ShopSmart/pkg/metrics"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/entity"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/repository"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/util"

	"github.com/rs/zerolog"
)

const (
	opUpsert    = "upsert"
	opRemove    = "remove"
	opRecompute = "recompute"

	// сколько раз перечитываем товар, если его версию изменил другой процесс
	maxWriteAttempts = 3
)

// PriceService владеет ценами товаров: каждое изменение цены записывается
// вместе с пересчитанными метриками одной операцией репозитория
type PriceService struct {
	items  repository.ItemRepository
	stores repository.StoreRepository
	locks  *keyedMutex
	notify *notifier
	now    func() time.Time
	log    zerolog.Logger
}

func NewPriceService(
	items repository.ItemRepository,
	stores repository.StoreRepository,
	cache util.ViewCache,
	publisher util.MessagePublisher,
) *PriceService {
	log := logger.Component("price_service")
	return &PriceService{
		items:  items,
		stores: stores,
		locks:  newKeyedMutex(),
		notify: newNotifier(cache, publisher, log),
		now:    func() time.Time { return time.Now().UTC() },
		log:    log,
	}
}

// priceMutation строит изменение по свежепрочитанному товару.
// nil без ошибки означает, что записывать нечего.
type priceMutation func(item *entity.Item, now time.Time) (*repository.PriceChange, error)

// UpsertPrice заменяет предложение магазина по товару.
// Если цена изменилась, старая цена уходит в историю с её прежней датой.
func (s *PriceService) UpsertPrice(ctx context.Context, submission entity.PriceSubmission) (*entity.Item, error) {
	if _, err := newPriceRecord(submission, s.now()); err != nil {
		metrics.RecordPriceMutation(opUpsert, "invalid")
		return nil, err
	}

	if _, err := s.stores.GetByID(ctx, submission.StoreID); err != nil {
		if errors.Is(err, repository.ErrStoreNotFound) {
			metrics.RecordPriceMutation(opUpsert, "not_found")
			return nil, ErrStoreNotFound
		}
		metrics.RecordPriceMutation(opUpsert, "error")
		return nil, fmt.Errorf("failed to get store: %w", err)
	}

	var record entity.PriceRecord
	item, change, err := s.mutate(ctx, submission.ItemID, opUpsert, func(item *entity.Item, now time.Time) (*repository.PriceChange, error) {
		var err error
		record, err = newPriceRecord(submission, now)
		if err != nil {
			return nil, err
		}

		prices := entity.ClonePrices(item.Prices)
		change := &repository.PriceChange{Upsert: &record}
		if previous, ok := prices[record.StoreID]; ok && previous.CurrentPrice != record.CurrentPrice {
			change.History = &entity.PriceHistoryEntry{
				StoreID:    previous.StoreID,
				Price:      previous.CurrentPrice,
				RecordedAt: previous.LastUpdated,
			}
		}
		prices[record.StoreID] = record
		change.Metrics = metricsOf(prices)
		item.Prices = prices
		return change, nil
	})
	if err != nil {
		return nil, err
	}

	if change.History != nil {
		metrics.PriceHistoryAppends.Inc()
	}
	s.afterPriceChange(ctx, item, entity.EventPriceUpdated, record.StoreID, &record)

	return item, nil
}

// RemovePrice удаляет предложение магазина. После удаления последней цены
// метрики товара сбрасываются в состояние "нет предложений".
func (s *PriceService) RemovePrice(ctx context.Context, itemID, storeID string) (*entity.Item, error) {
	item, _, err := s.mutate(ctx, itemID, opRemove, func(item *entity.Item, now time.Time) (*repository.PriceChange, error) {
		if _, ok := item.Prices[storeID]; !ok {
			return nil, ErrPriceNotFound
		}

		prices := entity.ClonePrices(item.Prices)
		delete(prices, storeID)
		item.Prices = prices
		return &repository.PriceChange{
			RemoveStoreID: storeID,
			Metrics:       metricsOf(prices),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.afterPriceChange(ctx, item, entity.EventPriceRemoved, storeID, nil)

	return item, nil
}

// ListPrices возвращает снимок цен товара по возрастанию цены (при равенстве по store ID).
// Последовательность можно обходить повторно.
func (s *PriceService) ListPrices(ctx context.Context, itemID string) (iter.Seq[entity.PriceRecord], error) {
	item, err := s.getItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	records := item.SortedPrices()
	return func(yield func(entity.PriceRecord) bool) {
		for _, record := range records {
			if !yield(record) {
				return
			}
		}
	}, nil
}

// History возвращает историю цен товара, новые записи первыми
func (s *PriceService) History(ctx context.Context, itemID string) ([]entity.PriceHistoryEntry, error) {
	history, err := s.items.History(ctx, itemID)
	if err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get price history: %w", err)
	}

	result := make([]entity.PriceHistoryEntry, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		result = append(result, history[i])
	}
	return result, nil
}

// Recompute пересчитывает метрики товара по текущим ценам и записывает их,
// только если сохранённые метрики расходятся с вычисленными
func (s *PriceService) Recompute(ctx context.Context, itemID string) (*entity.Item, bool, error) {
	timer := metrics.NewTimer()
	defer func() { metrics.RecomputeDuration.Observe(timer.Seconds()) }()

	item, change, err := s.mutate(ctx, itemID, opRecompute, func(item *entity.Item, _ time.Time) (*repository.PriceChange, error) {
		computed := metricsOf(item.Prices)
		if computed.Equal(item.DerivedMetrics) {
			return nil, nil
		}
		return &repository.PriceChange{Metrics: computed}, nil
	})
	if err != nil {
		return nil, false, err
	}

	repaired := change != nil
	if repaired {
		s.log.Info().Str("item_id", itemID).Msg("derived metrics repaired")
		s.afterPriceChange(ctx, item, entity.EventPriceUpdated, "", nil)
	}

	return item, repaired, nil
}

// ReconcileAll пересчитывает метрики всех товаров и возвращает число исправленных.
// Ошибка одного товара не останавливает обход.
func (s *PriceService) ReconcileAll(ctx context.Context) (int, error) {
	ids, err := s.items.ListIDs(ctx)
	if err != nil {
		err = fmt.Errorf("failed to list items: %w", err)
		metrics.RecordReconcile(0, err)
		return 0, err
	}

	var (
		repaired int
		errs     []error
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		_, fixed, err := s.Recompute(ctx, id)
		if err != nil {
			// товар удалён после ListIDs
			if errors.Is(err, ErrItemNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("item %s: %w", id, err))
			continue
		}
		if fixed {
			repaired++
		}
	}

	err = errors.Join(errs...)
	metrics.RecordReconcile(repaired, err)

	s.log.Info().
		Int("items", len(ids)).
		Int("repaired", repaired).
		Int("failed", len(errs)).
		Msg("reconciliation finished")

	return repaired, err
}

// mutate выполняет read-modify-write товара под блокировкой товара.
// Если версию товара изменил другой процесс, товар перечитывается.
func (s *PriceService) mutate(ctx context.Context, itemID, op string, build priceMutation) (*entity.Item, *repository.PriceChange, error) {
	unlock := s.locks.Lock(itemID)
	defer unlock()

	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		item, err := s.getItem(ctx, itemID)
		if err != nil {
			s.recordResult(op, err)
			return nil, nil, err
		}

		now := s.now()
		version := item.Version
		change, err := build(item, now)
		if err != nil {
			s.recordResult(op, err)
			return nil, nil, err
		}
		if change == nil {
			return item, nil, nil
		}

		change.ItemID = itemID
		change.ExpectedVersion = version
		change.UpdatedAt = now

		err = s.items.ApplyPriceChange(ctx, *change)
		switch {
		case err == nil:
			item.DerivedMetrics = change.Metrics
			item.Version = version + 1
			item.UpdatedAt = now
			s.recordResult(op, nil)
			return item, change, nil
		case errors.Is(err, repository.ErrVersionConflict):
			s.log.Debug().Str("item_id", itemID).Int("attempt", attempt).Msg("item version conflict, retrying")
			continue
		case errors.Is(err, repository.ErrItemNotFound):
			s.recordResult(op, ErrItemNotFound)
			return nil, nil, ErrItemNotFound
		default:
			err = fmt.Errorf("failed to apply price change: %w", err)
			s.recordResult(op, err)
			return nil, nil, err
		}
	}

	s.recordResult(op, ErrConcurrentModification)
	return nil, nil, ErrConcurrentModification
}

func (s *PriceService) getItem(ctx context.Context, itemID string) (*entity.Item, error) {
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

func (s *PriceService) afterPriceChange(ctx context.Context, item *entity.Item, eventType, storeID string, record *entity.PriceRecord) {
	s.notify.itemChanged(ctx, item.ID)
	s.notify.publish(ctx, entity.PriceEvent{
		EventType: eventType,
		ItemID:    item.ID,
		StoreID:   storeID,
		Record:    record,
		Metrics:   item.DerivedMetrics,
		Timestamp: item.UpdatedAt,
	})
}

func (s *PriceService) recordResult(op string, err error) {
	if op == opRecompute {
		return
	}

	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidPrice):
		result = "invalid"
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	case errors.Is(err, ErrConcurrentModification):
		result = "conflict"
	default:
		result = "error"
	}
	metrics.RecordPriceMutation(op, result)
}
