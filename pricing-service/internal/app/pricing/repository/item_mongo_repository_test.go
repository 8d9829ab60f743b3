package repository

import (
	"context"
	"testing"
	"time"

	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func floatPtr(v float64) *float64 { return &v }

func TestBuildMongoFilter(t *testing.T) {
	filter := entity.ItemFilter{
		Text:      "milk (2%)",
		Category:  "Dairy",
		StoreID:   "store-1",
		MinPrice:  floatPtr(1),
		MaxPrice:  floatPtr(5),
		DealsOnly: true,
	}

	query := buildMongoFilter(filter)

	assert.Equal(t, "Dairy", query["category"])
	assert.Equal(t, bson.M{"$exists": true}, query["prices.store-1"])
	assert.Equal(t, true, query["metrics.is_on_sale"])
	assert.Equal(t, bson.M{"$gte": 1.0, "$lte": 5.0}, query["metrics.average_price"])

	or := query["$or"].(bson.A)
	require.Len(t, or, 3)
	assert.Equal(t, bson.M{"name": bson.M{"$regex": `milk \(2%\)`, "$options": "i"}}, or[0])
}

func TestBuildMongoFilter_Empty(t *testing.T) {
	assert.Empty(t, buildMongoFilter(entity.ItemFilter{}))
}

func TestBuildMongoFilter_SkipsUnsafeStoreID(t *testing.T) {
	query := buildMongoFilter(entity.ItemFilter{StoreID: "$where"})

	assert.Empty(t, query)
}

func TestBuildPriceUpdate_Upsert(t *testing.T) {
	now := time.Now()
	record := entity.PriceRecord{StoreID: "store-1", CurrentPrice: 2.79, OriginalPrice: 2.99}
	history := entity.PriceHistoryEntry{StoreID: "store-1", Price: 2.99}

	update := buildPriceUpdate(PriceChange{
		ItemID:          "item-1",
		ExpectedVersion: 3,
		Upsert:          &record,
		History:         &history,
		UpdatedAt:       now,
	})

	set := update["$set"].(bson.M)
	assert.Equal(t, record, set["prices.store-1"])
	assert.Equal(t, now, set["updated_at"])
	assert.Contains(t, set, "metrics")
	assert.Equal(t, bson.M{"version": 1}, update["$inc"])
	assert.Equal(t, bson.M{"price_history": history}, update["$push"])
	assert.NotContains(t, update, "$unset")
}

func TestBuildPriceUpdate_Remove(t *testing.T) {
	update := buildPriceUpdate(PriceChange{ItemID: "item-1", RemoveStoreID: "store-2"})

	assert.Equal(t, bson.M{"prices.store-2": ""}, update["$unset"])
	assert.NotContains(t, update, "$push")
	assert.NotContains(t, update["$set"].(bson.M), "prices.store-2")
}

func TestMongoItemRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("GetByID decodes prices and metrics", func(mt *mtest.T) {
		repo := &mongoItemRepository{collection: mt.Coll}
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "item-1"},
			{Key: "name", Value: "Organic Bananas"},
			{Key: "category", Value: "Fruits"},
			{Key: "prices", Value: bson.D{
				{Key: "store-1", Value: bson.D{
					{Key: "store_id", Value: "store-1"},
					{Key: "current_price", Value: 2.99},
					{Key: "original_price", Value: 3.49},
					{Key: "discount", Value: 0.5},
					{Key: "in_stock", Value: true},
				}},
			}},
			{Key: "metrics", Value: bson.D{
				{Key: "average_price", Value: 2.99},
				{Key: "deal_score", Value: 5.0},
				{Key: "is_on_sale", Value: true},
			}},
			{Key: "version", Value: int64(4)},
		}))

		item, err := repo.GetByID(context.Background(), "item-1")

		require.NoError(mt, err)
		assert.Equal(mt, "Organic Bananas", item.Name)
		assert.Equal(mt, int64(4), item.Version)
		assert.Equal(mt, 2.99, item.Prices["store-1"].CurrentPrice)
		require.NotNil(mt, item.AveragePrice)
		assert.Equal(mt, 2.99, *item.AveragePrice)
		assert.Nil(mt, item.CheapestStore)
		assert.True(mt, item.IsOnSale)
	})

	mt.Run("GetByID not found", func(mt *mtest.T) {
		repo := &mongoItemRepository{collection: mt.Coll}
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		item, err := repo.GetByID(context.Background(), "missing")

		assert.ErrorIs(mt, err, ErrItemNotFound)
		assert.Nil(mt, item)
	})

	mt.Run("ApplyPriceChange success", func(mt *mtest.T) {
		repo := &mongoItemRepository{collection: mt.Coll}

		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		err := repo.ApplyPriceChange(context.Background(), PriceChange{ItemID: "item-1", ExpectedVersion: 1})

		assert.NoError(mt, err)
	})

	mt.Run("ApplyPriceChange version conflict", func(mt *mtest.T) {
		repo := &mongoItemRepository{collection: mt.Coll}
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()

		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "_id", Value: 1}, {Key: "n", Value: 1}}),
		)

		err := repo.ApplyPriceChange(context.Background(), PriceChange{ItemID: "item-1", ExpectedVersion: 1})

		assert.ErrorIs(mt, err, ErrVersionConflict)
	})

	mt.Run("ApplyPriceChange item deleted", func(mt *mtest.T) {
		repo := &mongoItemRepository{collection: mt.Coll}
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()

		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch),
		)

		err := repo.ApplyPriceChange(context.Background(), PriceChange{ItemID: "item-1", ExpectedVersion: 1})

		assert.ErrorIs(mt, err, ErrItemNotFound)
	})

	mt.Run("Delete not found", func(mt *mtest.T) {
		repo := &mongoItemRepository{collection: mt.Coll}

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		err := repo.Delete(context.Background(), "missing")

		assert.ErrorIs(mt, err, ErrItemNotFound)
	})

	mt.Run("History returns entries", func(mt *mtest.T) {
		repo := &mongoItemRepository{collection: mt.Coll}
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		recorded := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "item-1"},
			{Key: "price_history", Value: bson.A{
				bson.D{{Key: "store_id", Value: "store-1"}, {Key: "price", Value: 3.49}, {Key: "recorded_at", Value: recorded}},
			}},
		}))

		history, err := repo.History(context.Background(), "item-1")

		require.NoError(mt, err)
		require.Len(mt, history, 1)
		assert.Equal(mt, 3.49, history[0].Price)
		assert.True(mt, recorded.Equal(history[0].RecordedAt))
	})
}
