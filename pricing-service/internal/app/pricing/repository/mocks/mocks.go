package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/entity"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/repository"

	"github.com/stretchr/testify/mock"
)

// MockStoreRepository мок для StoreRepository
type MockStoreRepository struct {
	mock.Mock
}

func (m *MockStoreRepository) Create(ctx context.Context, store *entity.Store) error {
	args := m.Called(ctx, store)
	return args.Error(0)
}

func (m *MockStoreRepository) GetByID(ctx context.Context, id string) (*entity.Store, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Store), args.Error(1)
}

func (m *MockStoreRepository) GetByIDs(ctx context.Context, ids []string) (map[string]entity.Store, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]entity.Store), args.Error(1)
}

func (m *MockStoreRepository) List(ctx context.Context, activeOnly bool) ([]entity.Store, error) {
	args := m.Called(ctx, activeOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Store), args.Error(1)
}

func (m *MockStoreRepository) SetActive(ctx context.Context, id string, active bool) error {
	args := m.Called(ctx, id, active)
	return args.Error(0)
}

// MockItemRepository мок для ItemRepository
type MockItemRepository struct {
	mock.Mock
}

func (m *MockItemRepository) Create(ctx context.Context, item *entity.Item) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *MockItemRepository) GetByID(ctx context.Context, id string) (*entity.Item, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Item), args.Error(1)
}

func (m *MockItemRepository) Find(ctx context.Context, filter entity.ItemFilter) ([]entity.Item, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Item), args.Error(1)
}

func (m *MockItemRepository) ListIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockItemRepository) UpdateDetails(ctx context.Context, item *entity.Item) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *MockItemRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockItemRepository) History(ctx context.Context, id string) ([]entity.PriceHistoryEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.PriceHistoryEntry), args.Error(1)
}

func (m *MockItemRepository) ApplyPriceChange(ctx context.Context, change repository.PriceChange) error {
	args := m.Called(ctx, change)
	return args.Error(0)
}

// MockViewCache мок для ViewCache (Redis)
type MockViewCache struct {
	mock.Mock
}

func (m *MockViewCache) GetComparison(ctx context.Context, itemID string) (*entity.PriceComparison, int64, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).(*entity.PriceComparison), args.Get(1).(int64), args.Error(2)
}

func (m *MockViewCache) SetComparison(ctx context.Context, itemID string, generation int64, comparison *entity.PriceComparison, ttl time.Duration) error {
	args := m.Called(ctx, itemID, generation, comparison, ttl)
	return args.Error(0)
}

func (m *MockViewCache) GetFeaturedDeals(ctx context.Context, limit int) ([]entity.Item, int64, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]entity.Item), args.Get(1).(int64), args.Error(2)
}

func (m *MockViewCache) SetFeaturedDeals(ctx context.Context, limit int, generation int64, items []entity.Item, ttl time.Duration) error {
	args := m.Called(ctx, limit, generation, items, ttl)
	return args.Error(0)
}

func (m *MockViewCache) InvalidateItem(ctx context.Context, itemID string) error {
	args := m.Called(ctx, itemID)
	return args.Error(0)
}

func (m *MockViewCache) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockMessagePublisher мок для MessagePublisher (Kafka).
// Отправленные сообщения сохраняются в Messages.
type MockMessagePublisher struct {
	mock.Mock
	mu       sync.Mutex
	Messages [][]byte
}

func (m *MockMessagePublisher) PublishMessage(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	m.Messages = append(m.Messages, value)
	m.mu.Unlock()

	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockMessagePublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Published возвращает копию отправленных сообщений
func (m *MockMessagePublisher) Published() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.Messages...)
}
