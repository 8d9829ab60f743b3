package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Qirrat098/ShopSmart/pkg/logger"
	"github.com/Qirrat098/ShopSmart/pkg/metrics"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/entity"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const itemsCollection = "items"

// mongoItemRepository хранит товар одним документом: цены - map по store ID,
// метрики - поддокумент metrics, история - массив price_history
type mongoItemRepository struct {
	collection *mongo.Collection
}

// withoutHistory исключает историю цен из чтения товаров
var withoutHistory = bson.M{"price_history": 0}

// NewMongoItemRepository создает репозиторий товаров и индексы для фильтров поиска
func NewMongoItemRepository(db *mongo.Database) ItemRepository {
	collection := db.Collection(itemsCollection)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "category", Value: 1}}, Options: options.Index().SetName("category_idx")},
		{Keys: bson.D{{Key: "metrics.average_price", Value: 1}}, Options: options.Index().SetName("average_price_idx")},
		{Keys: bson.D{{Key: "metrics.deal_score", Value: -1}}, Options: options.Index().SetName("deal_score_idx")},
		{Keys: bson.D{{Key: "metrics.is_on_sale", Value: 1}}, Options: options.Index().SetName("is_on_sale_idx")},
		{Keys: bson.D{{Key: "created_at", Value: -1}}, Options: options.Index().SetName("created_at_idx")},
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		logger.Warn().Err(err).Str("collection", itemsCollection).Msg("Failed to create item indexes")
	}

	return &mongoItemRepository{collection: collection}
}

func (r *mongoItemRepository) Create(ctx context.Context, item *entity.Item) error {
	timer := metrics.NewDbTimer(serviceName, metrics.DbOpInsert, itemsCollection)
	defer timer.ObserveDuration()

	if item.Prices == nil {
		item.Prices = map[string]entity.PriceRecord{}
	}

	if _, err := r.collection.InsertOne(ctx, item); err != nil {
		metrics.RecordDbError(serviceName, metrics.DbOpInsert)
		return fmt.Errorf("failed to create item: %w", err)
	}

	return nil
}

func (r *mongoItemRepository) GetByID(ctx context.Context, id string) (*entity.Item, error) {
	timer := metrics.NewDbTimer(serviceName, metrics.DbOpSelect, itemsCollection)
	defer timer.ObserveDuration()

	var item entity.Item
	opts := options.FindOne().SetProjection(withoutHistory)
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}, opts).Decode(&item); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrItemNotFound
		}
		metrics.RecordDbError(serviceName, metrics.DbOpSelect)
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	return &item, nil
}

func (r *mongoItemRepository) Find(ctx context.Context, filter entity.ItemFilter) ([]entity.Item, error) {
	timer := metrics.NewDbTimer(serviceName, metrics.DbOpSelect, itemsCollection)
	defer timer.ObserveDuration()

	opts := options.Find().
		SetProjection(withoutHistory).
		SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, buildMongoFilter(filter), opts)
	if err != nil {
		metrics.RecordDbError(serviceName, metrics.DbOpSelect)
		return nil, fmt.Errorf("failed to find items: %w", err)
	}
	defer cursor.Close(ctx)

	var items []entity.Item
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}

	return items, nil
}

func (r *mongoItemRepository) ListIDs(ctx context.Context) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list item ids: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode item ids: %w", err)
	}

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	return ids, nil
}

// UpdateDetails обновляет только описательные поля, цены и метрики не трогает
func (r *mongoItemRepository) UpdateDetails(ctx context.Context, item *entity.Item) error {
	timer := metrics.NewDbTimer(serviceName, metrics.DbOpUpdate, itemsCollection)
	defer timer.ObserveDuration()

	update := bson.M{"$set": bson.M{
		"name":       item.Name,
		"category":   item.Category,
		"brand":      item.Brand,
		"unit":       item.Unit,
		"image_url":  item.ImageURL,
		"tags":       item.Tags,
		"updated_at": item.UpdatedAt,
	}}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": item.ID}, update)
	if err != nil {
		metrics.RecordDbError(serviceName, metrics.DbOpUpdate)
		return fmt.Errorf("failed to update item: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrItemNotFound
	}

	return nil
}

func (r *mongoItemRepository) Delete(ctx context.Context, id string) error {
	timer := metrics.NewDbTimer(serviceName, metrics.DbOpDelete, itemsCollection)
	defer timer.ObserveDuration()

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		metrics.RecordDbError(serviceName, metrics.DbOpDelete)
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrItemNotFound
	}

	return nil
}

func (r *mongoItemRepository) History(ctx context.Context, id string) ([]entity.PriceHistoryEntry, error) {
	var doc struct {
		History []entity.PriceHistoryEntry `bson:"price_history"`
	}

	opts := options.FindOne().SetProjection(bson.M{"price_history": 1})
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get price history: %w", err)
	}

	return doc.History, nil
}

// ApplyPriceChange выполняет один UpdateOne по {_id, version}:
// запись цены, метрики, история и версия меняются атомарно в пределах документа
func (r *mongoItemRepository) ApplyPriceChange(ctx context.Context, change PriceChange) error {
	timer := metrics.NewDbTimer(serviceName, metrics.DbOpUpdate, itemsCollection)
	defer timer.ObserveDuration()

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": change.ItemID, "version": change.ExpectedVersion},
		buildPriceUpdate(change),
	)
	if err != nil {
		metrics.RecordDbError(serviceName, metrics.DbOpUpdate)
		return fmt.Errorf("failed to apply price change: %w", err)
	}

	if result.MatchedCount == 0 {
		count, err := r.collection.CountDocuments(ctx, bson.M{"_id": change.ItemID})
		if err != nil {
			return fmt.Errorf("failed to check item existence: %w", err)
		}
		if count == 0 {
			return ErrItemNotFound
		}
		return ErrVersionConflict
	}

	return nil
}

func buildPriceUpdate(change PriceChange) bson.M {
	set := bson.M{
		"metrics":    change.Metrics,
		"updated_at": change.UpdatedAt,
	}
	update := bson.M{
		"$set": set,
		"$inc": bson.M{"version": 1},
	}

	if change.Upsert != nil {
		set["prices."+change.Upsert.StoreID] = *change.Upsert
	}
	if change.RemoveStoreID != "" {
		update["$unset"] = bson.M{"prices." + change.RemoveStoreID: ""}
	}
	if change.History != nil {
		update["$push"] = bson.M{"price_history": *change.History}
	}

	return update
}

func buildMongoFilter(filter entity.ItemFilter) bson.M {
	query := bson.M{}

	if filter.Category != "" {
		query["category"] = filter.Category
	}
	// store ID с '.' или '$' не может быть частью пути поля, такой фильтр проверяется в сервисе
	if filter.StoreID != "" && !strings.ContainsAny(filter.StoreID, ".$") {
		query["prices."+filter.StoreID] = bson.M{"$exists": true}
	}
	if filter.DealsOnly {
		query["metrics.is_on_sale"] = true
	}

	priceRange := bson.M{}
	if filter.MinPrice != nil {
		priceRange["$gte"] = *filter.MinPrice
	}
	if filter.MaxPrice != nil {
		priceRange["$lte"] = *filter.MaxPrice
	}
	if len(priceRange) > 0 {
		query["metrics.average_price"] = priceRange
	}

	if filter.Text != "" {
		pattern := regexp.QuoteMeta(filter.Text)
		query["$or"] = bson.A{
			bson.M{"name": bson.M{"$regex": pattern, "$options": "i"}},
			bson.M{"category": bson.M{"$regex": pattern, "$options": "i"}},
			bson.M{"brand": bson.M{"$regex": pattern, "$options": "i"}},
		}
	}

	return query
}
