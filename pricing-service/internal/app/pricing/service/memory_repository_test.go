package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/entity"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/repository"
)

// memoryItemRepository - ItemRepository в памяти с проверкой версий как у настоящих хранилищ
type memoryItemRepository struct {
	mu      sync.Mutex
	items   map[string]*entity.Item
	history map[string][]entity.PriceHistoryEntry
	// conflicts - сколько следующих ApplyPriceChange завершатся ErrVersionConflict
	conflicts int
	applied   int
}

func newMemoryItemRepository() *memoryItemRepository {
	return &memoryItemRepository{
		items:   make(map[string]*entity.Item),
		history: make(map[string][]entity.PriceHistoryEntry),
	}
}

func cloneItem(item *entity.Item) *entity.Item {
	clone := *item
	clone.Prices = entity.ClonePrices(item.Prices)
	clone.Tags = append([]string(nil), item.Tags...)
	return &clone
}

func (r *memoryItemRepository) put(item *entity.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.ID] = cloneItem(item)
}

func (r *memoryItemRepository) Create(_ context.Context, item *entity.Item) error {
	r.put(item)
	return nil
}

func (r *memoryItemRepository) GetByID(_ context.Context, id string) (*entity.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, repository.ErrItemNotFound
	}
	return cloneItem(item), nil
}

func (r *memoryItemRepository) Find(_ context.Context, _ entity.ItemFilter) ([]entity.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]entity.Item, 0, len(r.items))
	for _, item := range r.items {
		items = append(items, *cloneItem(item))
	}
	// порядок map случайный, как и порядок кандидатов из настоящего хранилища
	return items, nil
}

func (r *memoryItemRepository) ListIDs(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *memoryItemRepository) UpdateDetails(_ context.Context, item *entity.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[item.ID]
	if !ok {
		return repository.ErrItemNotFound
	}
	stored.Name = item.Name
	stored.Category = item.Category
	stored.Brand = item.Brand
	stored.Unit = item.Unit
	stored.ImageURL = item.ImageURL
	stored.Tags = append([]string(nil), item.Tags...)
	stored.UpdatedAt = item.UpdatedAt
	return nil
}

func (r *memoryItemRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return repository.ErrItemNotFound
	}
	delete(r.items, id)
	delete(r.history, id)
	return nil
}

func (r *memoryItemRepository) History(_ context.Context, id string) ([]entity.PriceHistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return nil, repository.ErrItemNotFound
	}
	return append([]entity.PriceHistoryEntry(nil), r.history[id]...), nil
}

func (r *memoryItemRepository) ApplyPriceChange(_ context.Context, change repository.PriceChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[change.ItemID]
	if !ok {
		return repository.ErrItemNotFound
	}
	if r.conflicts > 0 {
		r.conflicts--
		// другой процесс успел записать
		item.Version++
	}
	if item.Version != change.ExpectedVersion {
		return repository.ErrVersionConflict
	}

	prices := entity.ClonePrices(item.Prices)
	if change.Upsert != nil {
		prices[change.Upsert.StoreID] = *change.Upsert
	}
	if change.RemoveStoreID != "" {
		delete(prices, change.RemoveStoreID)
	}
	item.Prices = prices
	item.DerivedMetrics = change.Metrics
	item.UpdatedAt = change.UpdatedAt
	item.Version++
	if change.History != nil {
		r.history[change.ItemID] = append(r.history[change.ItemID], *change.History)
	}
	r.applied++
	return nil
}

func (r *memoryItemRepository) stored(id string) *entity.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneItem(r.items[id])
}

// memoryStoreRepository - StoreRepository в памяти
type memoryStoreRepository struct {
	mu     sync.Mutex
	stores map[string]entity.Store
}

func newMemoryStoreRepository(stores ...entity.Store) *memoryStoreRepository {
	repo := &memoryStoreRepository{stores: make(map[string]entity.Store)}
	for _, store := range stores {
		repo.stores[store.ID] = store
	}
	return repo
}

func (r *memoryStoreRepository) Create(_ context.Context, store *entity.Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.stores {
		if existing.Name == store.Name {
			return repository.ErrStoreAlreadyExists
		}
	}
	r.stores[store.ID] = *store
	return nil
}

func (r *memoryStoreRepository) GetByID(_ context.Context, id string) (*entity.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	store, ok := r.stores[id]
	if !ok {
		return nil, repository.ErrStoreNotFound
	}
	return &store, nil
}

func (r *memoryStoreRepository) GetByIDs(_ context.Context, ids []string) (map[string]entity.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make(map[string]entity.Store, len(ids))
	for _, id := range ids {
		if store, ok := r.stores[id]; ok {
			result[id] = store
		}
	}
	return result, nil
}

func (r *memoryStoreRepository) List(_ context.Context, activeOnly bool) ([]entity.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stores := make([]entity.Store, 0, len(r.stores))
	for _, store := range r.stores {
		if activeOnly && !store.IsActive {
			continue
		}
		stores = append(stores, store)
	}
	sort.Slice(stores, func(a, b int) bool { return stores[a].Name < stores[b].Name })
	return stores, nil
}

func (r *memoryStoreRepository) SetActive(_ context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	store, ok := r.stores[id]
	if !ok {
		return repository.ErrStoreNotFound
	}
	store.IsActive = active
	r.stores[id] = store
	return nil
}

// Хелперы для создания тестовых данных

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testStores() []entity.Store {
	return []entity.Store{
		{ID: "store-a", Name: "Walmart", Kind: entity.StoreKindBoth, IsActive: true},
		{ID: "store-b", Name: "Target", Kind: entity.StoreKindBoth, IsActive: true},
		{ID: "store-c", Name: "Kroger", Kind: entity.StoreKindOffline, IsActive: true},
	}
}

func priceRecord(storeID string, current, original float64) entity.PriceRecord {
	return entity.PriceRecord{
		StoreID:       storeID,
		CurrentPrice:  current,
		OriginalPrice: original,
		Discount:      original - current,
		InStock:       true,
		LastUpdated:   testTime,
	}
}

// newTestItem создает товар с согласованными метриками
func newTestItem(id, name, category string, records ...entity.PriceRecord) *entity.Item {
	prices := make(map[string]entity.PriceRecord, len(records))
	for _, r := range records {
		prices[r.StoreID] = r
	}
	return &entity.Item{
		ID:             id,
		Name:           name,
		Category:       category,
		Prices:         prices,
		DerivedMetrics: metricsOf(prices),
		Version:        1,
		CreatedAt:      testTime,
		UpdatedAt:      testTime,
	}
}

func bananas() *entity.Item {
	return newTestItem("item-bananas", "Organic Bananas", "Fruits",
		priceRecord("store-a", 2.99, 3.49),
		priceRecord("store-b", 3.49, 3.49),
		priceRecord("store-c", 2.79, 2.99),
	)
}
