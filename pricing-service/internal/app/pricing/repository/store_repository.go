package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Qirrat098/ShopSmart/pkg/metrics"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/entity"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	serviceName        = "pricing-service"
	uniqueViolationErr = "23505"
)

// storeRepository реализует StoreRepository для PostgreSQL через GORM
type storeRepository struct {
	db *gorm.DB
}

func NewStoreRepository(db *gorm.DB) StoreRepository {
	return &storeRepository{db: db}
}

func (r *storeRepository) Create(ctx context.Context, store *entity.Store) error {
	timer := metrics.NewDbTimer(serviceName, metrics.DbOpInsert, "stores")
	defer timer.ObserveDuration()

	if err := r.db.WithContext(ctx).Create(store).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrStoreAlreadyExists
		}
		metrics.RecordDbError(serviceName, metrics.DbOpInsert)
		return fmt.Errorf("failed to create store: %w", err)
	}

	return nil
}

func (r *storeRepository) GetByID(ctx context.Context, id string) (*entity.Store, error) {
	timer := metrics.NewDbTimer(serviceName, metrics.DbOpSelect, "stores")
	defer timer.ObserveDuration()

	var store entity.Store
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&store)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrStoreNotFound
		}
		metrics.RecordDbError(serviceName, metrics.DbOpSelect)
		return nil, fmt.Errorf("failed to get store: %w", result.Error)
	}

	return &store, nil
}

// GetByIDs возвращает найденные магазины по ID, отсутствующие просто не попадают в map
func (r *storeRepository) GetByIDs(ctx context.Context, ids []string) (map[string]entity.Store, error) {
	result := make(map[string]entity.Store, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	timer := metrics.NewDbTimer(serviceName, metrics.DbOpSelect, "stores")
	defer timer.ObserveDuration()

	var stores []entity.Store
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&stores).Error; err != nil {
		metrics.RecordDbError(serviceName, metrics.DbOpSelect)
		return nil, fmt.Errorf("failed to get stores: %w", err)
	}

	for _, store := range stores {
		result[store.ID] = store
	}

	return result, nil
}

func (r *storeRepository) List(ctx context.Context, activeOnly bool) ([]entity.Store, error) {
	timer := metrics.NewDbTimer(serviceName, metrics.DbOpSelect, "stores")
	defer timer.ObserveDuration()

	query := r.db.WithContext(ctx)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var stores []entity.Store
	if err := query.Order("name ASC").Find(&stores).Error; err != nil {
		metrics.RecordDbError(serviceName, metrics.DbOpSelect)
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}

	return stores, nil
}

// SetActive меняет флаг активности (soft delete / восстановление)
func (r *storeRepository) SetActive(ctx context.Context, id string, active bool) error {
	timer := metrics.NewDbTimer(serviceName, metrics.DbOpUpdate, "stores")
	defer timer.ObserveDuration()

	result := r.db.WithContext(ctx).
		Model(&entity.Store{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active":  active,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		metrics.RecordDbError(serviceName, metrics.DbOpUpdate)
		return fmt.Errorf("failed to update store: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrStoreNotFound
	}

	return nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationErr
}
