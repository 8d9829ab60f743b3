package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Qirrat098/ShopSmart/pkg/logger"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/entity"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/repository"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/util"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CatalogService - администрирование магазинов и товаров
type CatalogService struct {
	stores repository.StoreRepository
	items  repository.ItemRepository
	notify *notifier
	now    func() time.Time
	log    zerolog.Logger
}

func NewCatalogService(
	stores repository.StoreRepository,
	items repository.ItemRepository,
	cache util.ViewCache,
	publisher util.MessagePublisher,
) *CatalogService {
	log := logger.Component("catalog_service")
	return &CatalogService{
		stores: stores,
		items:  items,
		notify: newNotifier(cache, publisher, log),
		now:    func() time.Time { return time.Now().UTC() },
		log:    log,
	}
}

// === STORES ===

func (s *CatalogService) CreateStore(ctx context.Context, req *entity.CreateStoreRequest) (*entity.Store, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidStore)
	}

	kind := req.Kind
	if kind == "" {
		kind = entity.StoreKindBoth
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidStore, kind)
	}

	now := s.now()
	store := &entity.Store{
		ID:        uuid.NewString(),
		Name:      name,
		Kind:      kind,
		LogoURL:   req.LogoURL,
		Website:   req.Website,
		Address:   req.Address,
		City:      req.City,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.stores.Create(ctx, store); err != nil {
		if errors.Is(err, repository.ErrStoreAlreadyExists) {
			return nil, ErrStoreAlreadyExists
		}
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	s.log.Info().Str("store_id", store.ID).Str("name", store.Name).Msg("store created")
	return store, nil
}

func (s *CatalogService) GetStore(ctx context.Context, id string) (*entity.Store, error) {
	store, err := s.stores.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrStoreNotFound) {
			return nil, ErrStoreNotFound
		}
		return nil, fmt.Errorf("failed to get store: %w", err)
	}
	return store, nil
}

// ListStores возвращает активные магазины по имени
func (s *CatalogService) ListStores(ctx context.Context) ([]entity.Store, error) {
	stores, err := s.stores.List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}
	if stores == nil {
		stores = []entity.Store{}
	}
	return stores, nil
}

// DeactivateStore - мягкое удаление, цены магазина остаются у товаров
func (s *CatalogService) DeactivateStore(ctx context.Context, id string) error {
	return s.setStoreActive(ctx, id, false)
}

func (s *CatalogService) ActivateStore(ctx context.Context, id string) error {
	return s.setStoreActive(ctx, id, true)
}

func (s *CatalogService) setStoreActive(ctx context.Context, id string, active bool) error {
	if err := s.stores.SetActive(ctx, id, active); err != nil {
		if errors.Is(err, repository.ErrStoreNotFound) {
			return ErrStoreNotFound
		}
		return fmt.Errorf("failed to update store: %w", err)
	}

	s.log.Info().Str("store_id", id).Bool("active", active).Msg("store activity changed")
	return nil
}

// === ITEMS ===

// CreateItem создает товар с начальными ценами, метрики вычисляются сразу
func (s *CatalogService) CreateItem(ctx context.Context, req *entity.CreateItemRequest) (*entity.Item, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidItem)
	}

	now := s.now()
	prices := make(map[string]entity.PriceRecord, len(req.Prices))
	storeIDs := make([]string, 0, len(req.Prices))
	for _, input := range req.Prices {
		if _, ok := prices[input.StoreID]; ok {
			return nil, fmt.Errorf("%w: duplicate price for store %s", ErrInvalidPrice, input.StoreID)
		}

		inStock := true
		if input.InStock != nil {
			inStock = *input.InStock
		}
		record, err := newPriceRecord(entity.PriceSubmission{
			StoreID:       input.StoreID,
			CurrentPrice:  input.CurrentPrice,
			OriginalPrice: input.OriginalPrice,
			InStock:       inStock,
		}, now)
		if err != nil {
			return nil, err
		}
		prices[input.StoreID] = record
		storeIDs = append(storeIDs, input.StoreID)
	}

	if len(storeIDs) > 0 {
		stores, err := s.stores.GetByIDs(ctx, storeIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to get stores: %w", err)
		}
		for _, id := range storeIDs {
			if _, ok := stores[id]; !ok {
				return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, id)
			}
		}
	}

	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = entity.DefaultCategory
	}

	item := &entity.Item{
		ID:             uuid.NewString(),
		Name:           name,
		Category:       category,
		Brand:          req.Brand,
		Unit:           req.Unit,
		ImageURL:       req.ImageURL,
		Tags:           normalizeTags(req.Tags),
		Prices:         prices,
		DerivedMetrics: metricsOf(prices),
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.items.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}

	s.notify.itemChanged(ctx, item.ID)
	for _, record := range item.SortedPrices() {
		s.notify.publish(ctx, entity.PriceEvent{
			EventType: entity.EventPriceUpdated,
			ItemID:    item.ID,
			StoreID:   record.StoreID,
			Record:    &record,
			Metrics:   item.DerivedMetrics,
			Timestamp: now,
		})
	}

	return item, nil
}

// UpdateItem меняет только описательные поля. Цены и метрики здесь не принимаются.
func (s *CatalogService) UpdateItem(ctx context.Context, id string, req *entity.UpdateItemRequest) (*entity.Item, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		item.Name = name
	}
	if category := strings.TrimSpace(req.Category); category != "" {
		item.Category = category
	}
	if req.Brand != nil {
		item.Brand = *req.Brand
	}
	if req.Unit != nil {
		item.Unit = *req.Unit
	}
	if req.ImageURL != nil {
		item.ImageURL = *req.ImageURL
	}
	if req.Tags != nil {
		item.Tags = normalizeTags(*req.Tags)
	}
	item.UpdatedAt = s.now()

	if err := s.items.UpdateDetails(ctx, item); err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to update item: %w", err)
	}

	s.notify.itemChanged(ctx, item.ID)
	return item, nil
}

// DeleteItem удаляет товар вместе с ценами и историей
func (s *CatalogService) DeleteItem(ctx context.Context, id string) error {
	if err := s.items.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			return ErrItemNotFound
		}
		return fmt.Errorf("failed to delete item: %w", err)
	}

	s.notify.itemChanged(ctx, id)
	s.notify.publish(ctx, entity.PriceEvent{
		EventType: entity.EventItemDeleted,
		ItemID:    id,
		Timestamp: s.now(),
	})

	s.log.Info().Str("item_id", id).Msg("item deleted")
	return nil
}

// normalizeTags убирает пустые теги и дубликаты, сохраняя порядок
func normalizeTags(tags []string) []string {
	result := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		result = append(result, tag)
	}
	return result
}
