package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Qirrat098/ShopSmart/pkg/metrics"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/entity"

	"github.com/redis/go-redis/v9"
)

const (
	serviceName = "pricing-service"

	compareKeyPrefix  = "compare"
	featuredKeyPrefix = "featured"
	featuredGenKey    = "featured:gen"
)

// cachedItem сериализует товар вместе с ценами (в entity.Item они скрыты от JSON)
type cachedItem struct {
	entity.Item
	Prices map[string]entity.PriceRecord `json:"prices"`
}

func (c cachedItem) toItem() entity.Item {
	item := c.Item
	item.Prices = c.Prices
	return item
}

type RedisClient struct {
	client *redis.Client
}

func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// NewRedisClientFromConn оборачивает уже созданный клиент (тесты, общий пул)
func NewRedisClientFromConn(client *redis.Client) *RedisClient {
	return &RedisClient{client: client}
}

func compareGenKey(itemID string) string {
	return compareKeyPrefix + ":" + itemID + ":gen"
}

func compareKey(itemID string, generation int64) string {
	return compareKeyPrefix + ":" + itemID + ":" + strconv.FormatInt(generation, 10)
}

func featuredKey(generation int64, limit int) string {
	return featuredKeyPrefix + ":" + strconv.FormatInt(generation, 10) + ":" + strconv.Itoa(limit)
}

// GetComparison возвращает (nil, generation, nil) при промахе кеша.
// generation нужно передать в SetComparison после чтения из БД.
func (r *RedisClient) GetComparison(ctx context.Context, itemID string) (*entity.PriceComparison, int64, error) {
	generation, err := r.generation(ctx, compareGenKey(itemID))
	if err != nil {
		return nil, 0, err
	}

	var comparison entity.PriceComparison
	found, err := r.getJSON(ctx, compareKey(itemID, generation), compareKeyPrefix, &comparison)
	if err != nil || !found {
		return nil, generation, err
	}

	return &comparison, generation, nil
}

func (r *RedisClient) SetComparison(ctx context.Context, itemID string, generation int64, comparison *entity.PriceComparison, ttl time.Duration) error {
	return r.setJSON(ctx, compareKey(itemID, generation), comparison, ttl)
}

func (r *RedisClient) GetFeaturedDeals(ctx context.Context, limit int) ([]entity.Item, int64, error) {
	generation, err := r.generation(ctx, featuredGenKey)
	if err != nil {
		return nil, 0, err
	}

	var cached []cachedItem
	found, err := r.getJSON(ctx, featuredKey(generation, limit), featuredKeyPrefix, &cached)
	if err != nil || !found {
		return nil, generation, err
	}

	items := make([]entity.Item, 0, len(cached))
	for _, c := range cached {
		items = append(items, c.toItem())
	}
	return items, generation, nil
}

func (r *RedisClient) SetFeaturedDeals(ctx context.Context, limit int, generation int64, items []entity.Item, ttl time.Duration) error {
	cached := make([]cachedItem, 0, len(items))
	for _, item := range items {
		cached = append(cached, cachedItem{Item: item, Prices: item.Prices})
	}
	return r.setJSON(ctx, featuredKey(generation, limit), cached, ttl)
}

// InvalidateItem сдвигает поколение сравнения товара и поколение featured deals
func (r *RedisClient) InvalidateItem(ctx context.Context, itemID string) error {
	timer := metrics.NewRedisTimer(serviceName, metrics.RedisOpSet)
	defer timer.ObserveDuration()

	pipe := r.client.TxPipeline()
	pipe.Incr(ctx, compareGenKey(itemID))
	pipe.Incr(ctx, featuredGenKey)
	if _, err := pipe.Exec(ctx); err != nil {
		metrics.RecordRedisError(serviceName, metrics.RedisOpSet)
		return fmt.Errorf("failed to invalidate item views: %w", err)
	}

	return nil
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

func (r *RedisClient) generation(ctx context.Context, key string) (int64, error) {
	generation, err := r.client.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		metrics.RecordRedisError(serviceName, metrics.RedisOpGet)
		return 0, fmt.Errorf("failed to get cache generation: %w", err)
	}
	return generation, nil
}

func (r *RedisClient) getJSON(ctx context.Context, key, prefix string, dest interface{}) (bool, error) {
	timer := metrics.NewRedisTimer(serviceName, metrics.RedisOpGet)
	defer timer.ObserveDuration()

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.RecordCacheMiss(serviceName, prefix)
			return false, nil
		}
		metrics.RecordRedisError(serviceName, metrics.RedisOpGet)
		return false, fmt.Errorf("failed to get %s from cache: %w", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}

	metrics.RecordCacheHit(serviceName, prefix)
	return true, nil
}

func (r *RedisClient) setJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	timer := metrics.NewRedisTimer(serviceName, metrics.RedisOpSet)
	defer timer.ObserveDuration()

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		metrics.RecordRedisError(serviceName, metrics.RedisOpSet)
		return fmt.Errorf("failed to set %s in cache: %w", key, err)
	}

	return nil
}
