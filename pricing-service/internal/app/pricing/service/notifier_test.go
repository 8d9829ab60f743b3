package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Qirrat098/ShopSmart/pkg/logger"
	"github.com/Qirrat098/ShopSmart/pkg/metrics"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/repository/mocks"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestNotifier(cache *mocks.MockViewCache) *notifier {
	n := newNotifier(cache, nil, logger.Component("notifier"))
	n.retryDelay = 0
	return n
}

func TestNotifier_ItemChanged_RetriesTransientCacheError(t *testing.T) {
	// Arrange
	cache := new(mocks.MockViewCache)
	cache.On("InvalidateItem", mock.Anything, "item-bananas").Return(errors.New("redis timeout")).Once()
	cache.On("InvalidateItem", mock.Anything, "item-bananas").Return(nil).Once()
	failures := testutil.ToFloat64(metrics.CacheInvalidationFailures)

	// Act
	newTestNotifier(cache).itemChanged(context.Background(), "item-bananas")

	// Assert
	cache.AssertNumberOfCalls(t, "InvalidateItem", 2)
	assert.Equal(t, failures, testutil.ToFloat64(metrics.CacheInvalidationFailures))
}

func TestNotifier_ItemChanged_CountsExhaustedRetries(t *testing.T) {
	cache := new(mocks.MockViewCache)
	cache.On("InvalidateItem", mock.Anything, "item-bananas").Return(errors.New("redis down"))
	failures := testutil.ToFloat64(metrics.CacheInvalidationFailures)

	newTestNotifier(cache).itemChanged(context.Background(), "item-bananas")

	cache.AssertNumberOfCalls(t, "InvalidateItem", invalidateAttempts)
	assert.Equal(t, failures+1, testutil.ToFloat64(metrics.CacheInvalidationFailures))
}

func TestNotifier_ItemChanged_IgnoresCanceledRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cache := new(mocks.MockViewCache)
	cache.On("InvalidateItem", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), "item-bananas").Return(nil).Once()

	newTestNotifier(cache).itemChanged(ctx, "item-bananas")

	cache.AssertExpectations(t)
}

func TestNotifier_ItemChanged_WithoutCache(t *testing.T) {
	assert.NotPanics(t, func() {
		newNotifier(nil, nil, logger.Component("notifier")).itemChanged(context.Background(), "item-bananas")
	})
}
