package service

import (
	"fmt"
	"math"
	"time"

	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/entity"
)

const dealScoreMultiplier = 10

// ComputeMetrics вычисляет derived metrics товара по его текущим ценам.
// Чистая функция: результат не зависит от порядка записей.
func ComputeMetrics(records []entity.PriceRecord) entity.DerivedMetrics {
	if len(records) == 0 {
		return entity.DerivedMetrics{}
	}

	// суммируем в фиксированном порядке, иначе сумма float зависит от порядка обхода map
	sorted := make([]entity.PriceRecord, len(records))
	copy(sorted, records)
	entity.SortByPrice(sorted)

	var (
		sum       float64
		dealScore float64
		onSale    bool
	)
	for _, record := range sorted {
		sum += record.CurrentPrice
		if discount := record.OriginalPrice - record.CurrentPrice; discount > 0 {
			dealScore += discount * dealScoreMultiplier
			onSale = true
		}
	}

	lowest := sorted[0].CurrentPrice
	highest := sorted[len(sorted)-1].CurrentPrice
	average := sum / float64(len(sorted))
	cheapestStore := sorted[0].StoreID

	return entity.DerivedMetrics{
		CheapestPrice: floatPtr(lowest),
		CheapestStore: &cheapestStore,
		AveragePrice:  &average,
		LowestPrice:   floatPtr(lowest),
		HighestPrice:  &highest,
		DealScore:     dealScore,
		IsOnSale:      onSale,
	}
}

func metricsOf(prices map[string]entity.PriceRecord) entity.DerivedMetrics {
	records := make([]entity.PriceRecord, 0, len(prices))
	for _, record := range prices {
		records = append(records, record)
	}
	return ComputeMetrics(records)
}

// newPriceRecord валидирует предложение магазина и строит PriceRecord.
// original_price по умолчанию равна current_price.
func newPriceRecord(submission entity.PriceSubmission, now time.Time) (entity.PriceRecord, error) {
	current := submission.CurrentPrice
	if !isFinite(current) || current <= 0 {
		return entity.PriceRecord{}, fmt.Errorf("%w: current price must be greater than 0", ErrInvalidPrice)
	}

	original := current
	if submission.OriginalPrice != nil {
		original = *submission.OriginalPrice
		if !isFinite(original) || original < current {
			return entity.PriceRecord{}, fmt.Errorf("%w: original price must not be less than current price", ErrInvalidPrice)
		}
	}

	return entity.PriceRecord{
		StoreID:       submission.StoreID,
		CurrentPrice:  current,
		OriginalPrice: original,
		Discount:      original - current,
		InStock:       submission.InStock,
		LastUpdated:   now,
	}, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func floatPtr(v float64) *float64 {
	return &v
}
