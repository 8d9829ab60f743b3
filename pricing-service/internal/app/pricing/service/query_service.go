package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Qirrat098/ShopSmart/pkg/logger"
	"github.com/Qirrat098/ShopSmart/pkg/metrics"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/entity"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/repository"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/util"

	"github.com/rs/zerolog"
)

// QueryService отвечает на запросы чтения каталога. Блокировок не берёт:
// репозиторий отдаёт товар с ценами и метриками одной версии.
type QueryService struct {
	items    repository.ItemRepository
	stores   repository.StoreRepository
	cache    util.ViewCache
	cacheTTL time.Duration
	log      zerolog.Logger
}

func NewQueryService(
	items repository.ItemRepository,
	stores repository.StoreRepository,
	cache util.ViewCache,
	cacheTTL time.Duration,
) *QueryService {
	return &QueryService{
		items:    items,
		stores:   stores,
		cache:    cache,
		cacheTTL: cacheTTL,
		log:      logger.Component("query_service"),
	}
}

func (s *QueryService) GetItem(ctx context.Context, id string) (*entity.Item, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// Search фильтрует, сортирует и разбивает каталог на страницы.
// Репозиторий возвращает кандидатов, окончательная фильтрация и сортировка выполняются здесь.
func (s *QueryService) Search(ctx context.Context, query entity.SearchQuery) (*entity.SearchResult, error) {
	sortKey, err := validateQuery(query)
	if err != nil {
		return nil, err
	}

	filter := query.Filter()
	candidates, err := s.items.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search items: %w", err)
	}
	metrics.RecordSearch(string(sortKey), len(candidates))

	matched := make([]entity.Item, 0, len(candidates))
	for i := range candidates {
		if filter.Matches(&candidates[i]) {
			matched = append(matched, candidates[i])
		}
	}
	sortItems(matched, sortKey)

	total := len(matched)
	result := &entity.SearchResult{
		Items:      []entity.Item{},
		TotalItems: total,
		TotalPages: pageCount(total, query.PageSize),
		Page:       query.Page,
		PageSize:   query.PageSize,
	}

	// сравнение номеров страниц вместо умножения: Page*PageSize может переполнить int
	if query.Page <= result.TotalPages {
		start := (query.Page - 1) * query.PageSize
		end := start + min(query.PageSize, total-start)
		result.Items = matched[start:end]
	}

	return result, nil
}

// FeaturedDeals возвращает до limit товаров со скидкой по убыванию deal score.
// limit <= 0 означает значение по умолчанию.
func (s *QueryService) FeaturedDeals(ctx context.Context, limit int) ([]entity.Item, error) {
	if limit <= 0 {
		limit = entity.DefaultFeaturedLimit
	}

	generation, cacheable := int64(0), s.cache != nil
	if s.cache != nil {
		cached, gen, err := s.cache.GetFeaturedDeals(ctx, limit)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Msg("failed to read featured deals from cache")
			cacheable = false
		case cached != nil:
			return cached, nil
		default:
			generation = gen
		}
	}

	filter := entity.ItemFilter{DealsOnly: true}
	candidates, err := s.items.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to get featured deals: %w", err)
	}

	deals := make([]entity.Item, 0, min(len(candidates), limit))
	for i := range candidates {
		if filter.Matches(&candidates[i]) {
			deals = append(deals, candidates[i])
		}
	}
	sortItems(deals, entity.SortByDealScore)
	if len(deals) > limit {
		deals = deals[:limit]
	}

	if cacheable {
		if err := s.cache.SetFeaturedDeals(ctx, limit, generation, deals, s.cacheTTL); err != nil {
			s.log.Warn().Err(err).Msg("failed to cache featured deals")
		}
	}

	return deals, nil
}

// ComparePrices возвращает цены товара по всем магазинам, дешёвые первыми.
// Товар без цен - пустой список и cheapest_price = null.
func (s *QueryService) ComparePrices(ctx context.Context, itemID string) (*entity.PriceComparison, error) {
	generation, cacheable := int64(0), s.cache != nil
	if s.cache != nil {
		cached, gen, err := s.cache.GetComparison(ctx, itemID)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Str("item_id", itemID).Msg("failed to read price comparison from cache")
			cacheable = false
		case cached != nil:
			return cached, nil
		default:
			generation = gen
		}
	}

	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	records := item.SortedPrices()
	names := s.storeNames(ctx, records)

	comparison := &entity.PriceComparison{
		Item: entity.ItemSummary{
			ID:       item.ID,
			Name:     item.Name,
			Category: item.Category,
			Brand:    item.Brand,
			Unit:     item.Unit,
			ImageURL: item.ImageURL,
		},
		Prices:        make([]entity.ComparedPrice, 0, len(records)),
		CheapestPrice: item.CheapestPrice,
		CheapestStore: item.CheapestStore,
		AveragePrice:  item.AveragePrice,
	}
	for _, record := range records {
		comparison.Prices = append(comparison.Prices, entity.ComparedPrice{
			PriceRecord: record,
			StoreName:   names[record.StoreID],
		})
	}

	if cacheable {
		if err := s.cache.SetComparison(ctx, itemID, generation, comparison, s.cacheTTL); err != nil {
			s.log.Warn().Err(err).Str("item_id", itemID).Msg("failed to cache price comparison")
		}
	}

	return comparison, nil
}

// storeNames подгружает названия магазинов одним запросом.
// Без названий сравнение всё равно корректно, поэтому ошибка только логируется.
func (s *QueryService) storeNames(ctx context.Context, records []entity.PriceRecord) map[string]string {
	names := make(map[string]string, len(records))
	if len(records) == 0 {
		return names
	}

	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.StoreID)
	}

	stores, err := s.stores.GetByIDs(ctx, ids)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to load store names")
		return names
	}
	for id, store := range stores {
		names[id] = store.Name
	}
	return names
}

func validateQuery(query entity.SearchQuery) (entity.SortKey, error) {
	if query.Page < 1 {
		return "", fmt.Errorf("%w: page must be >= 1", ErrInvalidQuery)
	}
	if query.PageSize <= 0 {
		return "", fmt.Errorf("%w: page size must be > 0", ErrInvalidQuery)
	}
	if (query.MinPrice != nil && math.IsNaN(*query.MinPrice)) || (query.MaxPrice != nil && math.IsNaN(*query.MaxPrice)) {
		return "", fmt.Errorf("%w: price bounds must be numbers", ErrInvalidQuery)
	}

	sortKey, ok := entity.ParseSortKey(query.SortKey)
	if !ok {
		return "", fmt.Errorf("%w: unknown sort key %q", ErrInvalidQuery, query.SortKey)
	}
	return sortKey, nil
}

// pageCount - число страниц размера pageSize для total элементов без переполнения
func pageCount(total, pageSize int) int {
	pages := total / pageSize
	if total%pageSize != 0 {
		pages++
	}
	return pages
}

// sortItems сортирует товары по ключу, равные элементы упорядочены по ID.
// Товары без цен при сортировке по цене всегда идут последними.
func sortItems(items []entity.Item, key entity.SortKey) {
	sort.SliceStable(items, func(a, b int) bool {
		x, y := &items[a], &items[b]
		switch key {
		case entity.SortByPriceAsc, entity.SortByPriceDesc:
			if (x.AveragePrice == nil) != (y.AveragePrice == nil) {
				return x.AveragePrice != nil
			}
			if x.AveragePrice != nil && *x.AveragePrice != *y.AveragePrice {
				if key == entity.SortByPriceAsc {
					return *x.AveragePrice < *y.AveragePrice
				}
				return *x.AveragePrice > *y.AveragePrice
			}
		case entity.SortByDealScore:
			if x.DealScore != y.DealScore {
				return x.DealScore > y.DealScore
			}
		case entity.SortByNewest:
			if !x.CreatedAt.Equal(y.CreatedAt) {
				return x.CreatedAt.After(y.CreatedAt)
			}
		default:
			xn, yn := strings.ToLower(x.Name), strings.ToLower(y.Name)
			if xn != yn {
				return xn < yn
			}
		}
		return x.ID < y.ID
	})
}
