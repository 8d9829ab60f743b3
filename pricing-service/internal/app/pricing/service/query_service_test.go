package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/entity"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/repository"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/repository/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newQueryService(items ...*entity.Item) *QueryService {
	itemRepo := newMemoryItemRepository()
	for _, item := range items {
		itemRepo.put(item)
	}
	return NewQueryService(itemRepo, newMemoryStoreRepository(testStores()...), nil, time.Minute)
}

func itemIDs(items []entity.Item) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

func dealItem(id string, discount float64) *entity.Item {
	return newTestItem(id, "Deal "+id, "Meat", priceRecord("store-a", 10, 10+discount))
}

// ==================== Search Tests ====================

func TestQueryService_Search_DairyByPriceAsc(t *testing.T) {
	// Arrange
	ctx := context.Background()
	service := newQueryService(
		newTestItem("item-cheese", "Cheddar Cheese", "Dairy", priceRecord("store-a", 5.99, 5.99)),
		newTestItem("item-milk", "Whole Milk", "Dairy", priceRecord("store-a", 4.59, 4.99), priceRecord("store-b", 4.99, 4.99)),
		newTestItem("item-bread", "Bread", "Bakery", priceRecord("store-a", 2.29, 2.29)),
	)
	query := entity.NewSearchQuery()
	query.Category = "Dairy"
	query.SortKey = "priceAsc"
	query.PageSize = 1

	// Act
	result, err := service.Search(ctx, query)

	// Assert
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "item-milk", result.Items[0].ID)
	assert.InDelta(t, 4.79, *result.Items[0].AveragePrice, 1e-9)
	assert.Equal(t, 2, result.TotalItems)
	assert.Equal(t, 2, result.TotalPages)

	query.Page = 2
	result, err = service.Search(ctx, query)
	require.NoError(t, err)
	assert.Equal(t, []string{"item-cheese"}, itemIDs(result.Items))
}

func TestQueryService_Search_InvalidQuery(t *testing.T) {
	service := newQueryService()
	nan := math.NaN()

	tests := []struct {
		name   string
		modify func(q *entity.SearchQuery)
	}{
		{"page zero", func(q *entity.SearchQuery) { q.Page = 0 }},
		{"negative page", func(q *entity.SearchQuery) { q.Page = -1 }},
		{"page size zero", func(q *entity.SearchQuery) { q.PageSize = 0 }},
		{"unknown sort key", func(q *entity.SearchQuery) { q.SortKey = "popularity" }},
		{"nan bound", func(q *entity.SearchQuery) { q.MinPrice = &nan }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query := entity.NewSearchQuery()
			tt.modify(&query)

			result, err := service.Search(context.Background(), query)

			assert.Nil(t, result)
			assert.ErrorIs(t, err, ErrInvalidQuery)
		})
	}

	_, err := service.Search(context.Background(), entity.SearchQuery{})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestQueryService_Search_PageBeyondEnd(t *testing.T) {
	service := newQueryService(bananas())
	query := entity.NewSearchQuery()
	query.Page = 5

	result, err := service.Search(context.Background(), query)

	require.NoError(t, err)
	assert.NotNil(t, result.Items)
	assert.Empty(t, result.Items)
	assert.Equal(t, 1, result.TotalItems)
	assert.Equal(t, 1, result.TotalPages)
}

func TestQueryService_Search_HugePagingValues(t *testing.T) {
	service := newQueryService(
		bananas(),
		newTestItem("item-2", "Whole Milk", "Dairy", priceRecord("store-a", 3.49, 3.49)),
	)

	tests := []struct {
		name          string
		page          int
		pageSize      int
		expectedItems int
		expectedPages int
	}{
		{"huge page", math.MaxInt, entity.DefaultPageSize, 0, 1},
		{"huge page size", 1, math.MaxInt, 2, 1},
		{"huge page and page size", math.MaxInt, math.MaxInt, 0, 1},
		{"last page", 2, 1, 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query := entity.NewSearchQuery()
			query.Page = tt.page
			query.PageSize = tt.pageSize

			var result *entity.SearchResult
			var err error
			require.NotPanics(t, func() {
				result, err = service.Search(context.Background(), query)
			})

			require.NoError(t, err)
			assert.NotNil(t, result.Items)
			assert.Len(t, result.Items, tt.expectedItems)
			assert.Equal(t, 2, result.TotalItems)
			assert.Equal(t, tt.expectedPages, result.TotalPages)
		})
	}
}

func TestQueryService_Search_PaginationIsExhaustive(t *testing.T) {
	ctx := context.Background()
	items := make([]*entity.Item, 0, 23)
	for i := 0; i < 23; i++ {
		// повторяющиеся цены и deal score, чтобы порядок решался по ID
		price := float64(1 + i%4)
		items = append(items, newTestItem(
			fmt.Sprintf("item-%02d", i),
			fmt.Sprintf("Item %d", i%5),
			"Pantry",
			priceRecord("store-a", price, price+float64(i%3)),
		))
	}
	service := newQueryService(items...)

	for _, sortKey := range []string{"name", "priceAsc", "priceDesc", "dealScore", "newest"} {
		t.Run(sortKey, func(t *testing.T) {
			full := entity.NewSearchQuery()
			full.SortKey = sortKey
			full.PageSize = 100
			expected, err := service.Search(ctx, full)
			require.NoError(t, err)
			require.Len(t, expected.Items, 23)

			var collected []string
			seen := make(map[string]bool)
			for page := 1; page <= 5; page++ {
				query := entity.NewSearchQuery()
				query.SortKey = sortKey
				query.PageSize = 5
				query.Page = page

				result, err := service.Search(ctx, query)
				require.NoError(t, err)
				assert.Equal(t, 23, result.TotalItems)
				assert.Equal(t, 5, result.TotalPages)

				for _, item := range result.Items {
					assert.False(t, seen[item.ID], "duplicate %s", item.ID)
					seen[item.ID] = true
					collected = append(collected, item.ID)
				}
			}

			assert.Equal(t, itemIDs(expected.Items), collected)
		})
	}
}

func TestQueryService_Search_SortOrders(t *testing.T) {
	ctx := context.Background()
	older := newTestItem("item-b", "banana chips", "Snacks", priceRecord("store-a", 3.00, 4.00))
	newer := newTestItem("item-a", "Apple Chips", "Snacks", priceRecord("store-a", 5.00, 5.50))
	newer.CreatedAt = testTime.Add(time.Hour)
	empty := newTestItem("item-c", "Corn Chips", "Snacks")
	service := newQueryService(older, newer, empty)

	tests := []struct {
		sortKey  string
		expected []string
	}{
		{"", []string{"item-a", "item-b", "item-c"}},
		{"name", []string{"item-a", "item-b", "item-c"}},
		{"priceAsc", []string{"item-b", "item-a", "item-c"}},
		{"price_low", []string{"item-b", "item-a", "item-c"}},
		{"priceDesc", []string{"item-a", "item-b", "item-c"}},
		{"price_high", []string{"item-a", "item-b", "item-c"}},
		{"dealScore", []string{"item-b", "item-a", "item-c"}},
		{"deal_score", []string{"item-b", "item-a", "item-c"}},
		{"newest", []string{"item-a", "item-b", "item-c"}},
	}

	for _, tt := range tests {
		t.Run("sort_"+tt.sortKey, func(t *testing.T) {
			query := entity.NewSearchQuery()
			query.SortKey = tt.sortKey

			result, err := service.Search(ctx, query)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, itemIDs(result.Items))
		})
	}
}

func TestQueryService_Search_Filters(t *testing.T) {
	ctx := context.Background()
	milk := newTestItem("item-milk", "Whole Milk", "Dairy", priceRecord("store-a", 4.59, 4.99), priceRecord("store-b", 4.99, 4.99))
	milk.Brand = "Organic Valley"
	yogurt := newTestItem("item-yogurt", "Greek Yogurt", "Dairy", priceRecord("store-c", 1.29, 1.29))
	noOffers := newTestItem("item-cream", "Organic Cream", "Dairy")
	service := newQueryService(milk, yogurt, noOffers, bananas())

	minPrice, maxPrice := 1.29, 4.80

	tests := []struct {
		name     string
		modify   func(q *entity.SearchQuery)
		expected []string
	}{
		{"text matches brand case-insensitively", func(q *entity.SearchQuery) { q.Text = "ORGANIC" },
			[]string{"item-cream", "item-bananas", "item-milk"}},
		{"text matches category", func(q *entity.SearchQuery) { q.Text = "fruit" },
			[]string{"item-bananas"}},
		{"category exact", func(q *entity.SearchQuery) { q.Category = "Dairy" },
			[]string{"item-yogurt", "item-cream", "item-milk"}},
		{"store", func(q *entity.SearchQuery) { q.StoreID = "store-c" },
			[]string{"item-yogurt", "item-bananas"}},
		{"price bounds inclusive, no offers excluded", func(q *entity.SearchQuery) { q.MinPrice = &minPrice; q.MaxPrice = &maxPrice },
			[]string{"item-yogurt", "item-bananas", "item-milk"}},
		{"deals only", func(q *entity.SearchQuery) { q.DealsOnly = true },
			[]string{"item-bananas", "item-milk"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query := entity.NewSearchQuery()
			query.SortKey = "priceAsc"
			tt.modify(&query)

			result, err := service.Search(ctx, query)

			require.NoError(t, err)
			assert.ElementsMatch(t, tt.expected, itemIDs(result.Items))
			assert.Equal(t, len(tt.expected), result.TotalItems)
		})
	}
}

func TestQueryService_Search_RepositoryError(t *testing.T) {
	itemRepo := new(mocks.MockItemRepository)
	itemRepo.On("Find", mock.Anything, mock.AnythingOfType("entity.ItemFilter")).Return(nil, errors.New("db error"))
	service := NewQueryService(itemRepo, new(mocks.MockStoreRepository), nil, time.Minute)

	result, err := service.Search(context.Background(), entity.NewSearchQuery())

	assert.Nil(t, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to search items")
}

// ==================== FeaturedDeals Tests ====================

func TestQueryService_FeaturedDeals_OrderedByDealScore(t *testing.T) {
	service := newQueryService(
		dealItem("item-1", 0.7),
		dealItem("item-2", 0.9),
		dealItem("item-3", 0.3),
		newTestItem("item-4", "Full price", "Meat", priceRecord("store-a", 8, 8)),
	)

	deals, err := service.FeaturedDeals(context.Background(), 2)

	require.NoError(t, err)
	require.Len(t, deals, 2)
	assert.Equal(t, []string{"item-2", "item-1"}, itemIDs(deals))
	assert.InDelta(t, 9.0, deals[0].DealScore, 1e-9)
	assert.InDelta(t, 7.0, deals[1].DealScore, 1e-9)
}

func TestQueryService_FeaturedDeals_DefaultLimitAndShortResult(t *testing.T) {
	items := make([]*entity.Item, 0, 12)
	for i := 0; i < 12; i++ {
		items = append(items, dealItem(fmt.Sprintf("item-%02d", i), 0.5))
	}
	service := newQueryService(items...)

	deals, err := service.FeaturedDeals(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, deals, entity.DefaultFeaturedLimit)
	// одинаковый deal score, порядок по ID
	assert.Equal(t, "item-00", deals[0].ID)

	deals, err = service.FeaturedDeals(context.Background(), 50)
	require.NoError(t, err)
	assert.Len(t, deals, 12)
}

func TestQueryService_FeaturedDeals_CacheHit(t *testing.T) {
	ctx := context.Background()
	itemRepo := new(mocks.MockItemRepository)
	cache := new(mocks.MockViewCache)
	cached := []entity.Item{*dealItem("item-1", 0.5)}
	cache.On("GetFeaturedDeals", ctx, 10).Return(cached, int64(3), nil)

	service := NewQueryService(itemRepo, new(mocks.MockStoreRepository), cache, time.Minute)

	deals, err := service.FeaturedDeals(ctx, 10)

	require.NoError(t, err)
	assert.Equal(t, cached, deals)
	itemRepo.AssertNotCalled(t, "Find", mock.Anything, mock.Anything)
}

func TestQueryService_FeaturedDeals_CacheMissStoresUnderGeneration(t *testing.T) {
	ctx := context.Background()
	itemRepo := newMemoryItemRepository()
	itemRepo.put(dealItem("item-1", 0.5))
	cache := new(mocks.MockViewCache)
	cache.On("GetFeaturedDeals", ctx, 10).Return(nil, int64(7), nil)
	cache.On("SetFeaturedDeals", ctx, 10, int64(7), mock.AnythingOfType("[]entity.Item"), time.Minute).Return(nil)

	service := NewQueryService(itemRepo, new(mocks.MockStoreRepository), cache, time.Minute)

	deals, err := service.FeaturedDeals(ctx, 10)

	require.NoError(t, err)
	assert.Len(t, deals, 1)
	cache.AssertExpectations(t)
}

func TestQueryService_FeaturedDeals_CacheErrorSkipsWrite(t *testing.T) {
	ctx := context.Background()
	itemRepo := newMemoryItemRepository()
	itemRepo.put(dealItem("item-1", 0.5))
	cache := new(mocks.MockViewCache)
	cache.On("GetFeaturedDeals", ctx, 10).Return(nil, int64(0), errors.New("redis down"))

	service := NewQueryService(itemRepo, new(mocks.MockStoreRepository), cache, time.Minute)

	deals, err := service.FeaturedDeals(ctx, 10)

	require.NoError(t, err)
	assert.Len(t, deals, 1)
	cache.AssertNotCalled(t, "SetFeaturedDeals", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// ==================== ComparePrices Tests ====================

func TestQueryService_ComparePrices_Success(t *testing.T) {
	service := newQueryService(bananas())

	comparison, err := service.ComparePrices(context.Background(), "item-bananas")

	require.NoError(t, err)
	assert.Equal(t, "Organic Bananas", comparison.Item.Name)
	require.Len(t, comparison.Prices, 3)
	assert.Equal(t, "store-c", comparison.Prices[0].StoreID)
	assert.Equal(t, "Kroger", comparison.Prices[0].StoreName)
	assert.Equal(t, "Walmart", comparison.Prices[1].StoreName)
	assert.Equal(t, "Target", comparison.Prices[2].StoreName)
	assert.Equal(t, 2.79, *comparison.CheapestPrice)
	assert.Equal(t, "store-c", *comparison.CheapestStore)
	assert.InDelta(t, 3.09, *comparison.AveragePrice, 1e-9)
}

func TestQueryService_ComparePrices_NoOffers(t *testing.T) {
	service := newQueryService(newTestItem("item-empty", "Saffron", "Spices"))

	comparison, err := service.ComparePrices(context.Background(), "item-empty")

	require.NoError(t, err)
	assert.NotNil(t, comparison.Prices)
	assert.Empty(t, comparison.Prices)
	assert.Nil(t, comparison.CheapestPrice)
	assert.Nil(t, comparison.CheapestStore)
}

func TestQueryService_ComparePrices_NotFound(t *testing.T) {
	service := newQueryService()

	comparison, err := service.ComparePrices(context.Background(), "item-x")

	assert.Nil(t, comparison)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestQueryService_ComparePrices_StoreLookupErrorKeepsPrices(t *testing.T) {
	ctx := context.Background()
	itemRepo := new(mocks.MockItemRepository)
	itemRepo.On("GetByID", ctx, "item-bananas").Return(bananas(), nil)
	storeRepo := new(mocks.MockStoreRepository)
	storeRepo.On("GetByIDs", ctx, mock.Anything).Return(nil, errors.New("db error"))

	service := NewQueryService(itemRepo, storeRepo, nil, time.Minute)

	comparison, err := service.ComparePrices(ctx, "item-bananas")

	require.NoError(t, err)
	require.Len(t, comparison.Prices, 3)
	assert.Empty(t, comparison.Prices[0].StoreName)
}

func TestQueryService_ComparePrices_UsesCache(t *testing.T) {
	ctx := context.Background()
	itemRepo := newMemoryItemRepository()
	itemRepo.put(bananas())
	cache := new(mocks.MockViewCache)
	cache.On("GetComparison", ctx, "item-bananas").Return(nil, int64(2), nil).Once()
	cache.On("SetComparison", ctx, "item-bananas", int64(2), mock.AnythingOfType("*entity.PriceComparison"), time.Minute).Return(nil)

	service := NewQueryService(itemRepo, newMemoryStoreRepository(testStores()...), cache, time.Minute)

	// Act - промах, результат кладется в кеш
	first, err := service.ComparePrices(ctx, "item-bananas")
	require.NoError(t, err)

	// Act - попадание
	cache.On("GetComparison", ctx, "item-bananas").Return(first, int64(2), nil).Once()
	second, err := service.ComparePrices(ctx, "item-bananas")

	// Assert
	require.NoError(t, err)
	assert.Same(t, first, second)
	cache.AssertExpectations(t)
}

func TestQueryService_GetItem_NotFound(t *testing.T) {
	itemRepo := new(mocks.MockItemRepository)
	itemRepo.On("GetByID", mock.Anything, "item-x").Return(nil, repository.ErrItemNotFound)
	service := NewQueryService(itemRepo, new(mocks.MockStoreRepository), nil, time.Minute)

	item, err := service.GetItem(context.Background(), "item-x")

	assert.Nil(t, item)
	assert.ErrorIs(t, err, ErrItemNotFound)
}
