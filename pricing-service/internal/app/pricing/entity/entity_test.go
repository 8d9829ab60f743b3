package entity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func TestParseSortKey(t *testing.T) {
	tests := []struct {
		raw  string
		want SortKey
		ok   bool
	}{
		{"", SortByName, true},
		{"name", SortByName, true},
		{"priceAsc", SortByPriceAsc, true},
		{"price_low", SortByPriceAsc, true},
		{"price_high", SortByPriceDesc, true},
		{"deal_score", SortByDealScore, true},
		{"newest", SortByNewest, true},
		{"cheapest", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseSortKey(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestSortPriceRecords_PriceThenStoreID(t *testing.T) {
	prices := map[string]PriceRecord{
		"store-c": {StoreID: "store-c", CurrentPrice: 2.79},
		"store-b": {StoreID: "store-b", CurrentPrice: 3.49},
		"store-a": {StoreID: "store-a", CurrentPrice: 2.79},
	}

	records := SortPriceRecords(prices)

	require.Len(t, records, 3)
	assert.Equal(t, "store-a", records[0].StoreID)
	assert.Equal(t, "store-c", records[1].StoreID)
	assert.Equal(t, "store-b", records[2].StoreID)
}

func TestItemFilter_Matches(t *testing.T) {
	item := &Item{
		ID:       "item-1",
		Name:     "Organic Bananas",
		Category: "Fruits",
		Brand:    "Organic Valley",
		Prices:   map[string]PriceRecord{"walmart": {StoreID: "walmart", CurrentPrice: 2.99}},
		DerivedMetrics: DerivedMetrics{
			AveragePrice: floatPtr(2.99),
			IsOnSale:     true,
		},
	}
	noOffers := &Item{ID: "item-2", Name: "Quinoa", Category: "Grains"}

	assert.True(t, ItemFilter{}.Matches(item))
	assert.True(t, ItemFilter{Text: "BANANA"}.Matches(item))
	assert.True(t, ItemFilter{Text: "valley"}.Matches(item))
	assert.True(t, ItemFilter{Text: "fruit"}.Matches(item))
	assert.False(t, ItemFilter{Text: "milk"}.Matches(item))
	assert.False(t, ItemFilter{Category: "fruits"}.Matches(item))
	assert.True(t, ItemFilter{StoreID: "walmart"}.Matches(item))
	assert.False(t, ItemFilter{StoreID: "target"}.Matches(item))
	assert.True(t, ItemFilter{MinPrice: floatPtr(2.99), MaxPrice: floatPtr(2.99)}.Matches(item))
	assert.False(t, ItemFilter{MinPrice: floatPtr(3)}.Matches(item))
	assert.False(t, ItemFilter{MaxPrice: floatPtr(100)}.Matches(noOffers))
	assert.False(t, ItemFilter{DealsOnly: true}.Matches(noOffers))
}

func TestDerivedMetrics_Equal(t *testing.T) {
	store := "walmart"
	a := DerivedMetrics{CheapestPrice: floatPtr(1), CheapestStore: &store, DealScore: 2, IsOnSale: true}
	b := DerivedMetrics{CheapestPrice: floatPtr(1), CheapestStore: &store, DealScore: 2, IsOnSale: true}

	assert.True(t, a.Equal(b))
	assert.True(t, DerivedMetrics{}.Equal(DerivedMetrics{}))

	b.CheapestPrice = floatPtr(1.5)
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(DerivedMetrics{}))
}

func TestNewItemResponse_FlattensMetricsAndSortsPrices(t *testing.T) {
	item := &Item{
		ID:   "item-1",
		Name: "Whole Milk",
		Prices: map[string]PriceRecord{
			"b": {StoreID: "b", CurrentPrice: 5.99},
			"a": {StoreID: "a", CurrentPrice: 4.79},
		},
		DerivedMetrics: DerivedMetrics{AveragePrice: floatPtr(5.39)},
		Version:        7,
		CreatedAt:      time.Now(),
	}

	data, err := json.Marshal(NewItemResponse(item))
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, 5.39, body["average_price"])
	assert.Nil(t, body["cheapest_price"])
	assert.NotContains(t, body, "version")
	assert.Equal(t, []interface{}{}, body["tags"])

	prices := body["prices"].([]interface{})
	require.Len(t, prices, 2)
	assert.Equal(t, "a", prices[0].(map[string]interface{})["store_id"])
}

func TestPriceObservation_Submission_DefaultsInStock(t *testing.T) {
	obs := PriceObservation{ItemID: "i", StoreID: "s", CurrentPrice: 1.5}

	sub := obs.Submission()

	assert.True(t, sub.InStock)
	assert.Equal(t, 1.5, sub.CurrentPrice)

	outOfStock := false
	obs.InStock = &outOfStock
	assert.False(t, obs.Submission().InStock)
}
