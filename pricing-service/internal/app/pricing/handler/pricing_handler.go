package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Qirrat098/ShopSmart/pkg/logger"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/entity"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type PricingHandler struct {
	prices    service.PriceServiceInterface
	queries   service.QueryServiceInterface
	catalog   service.CatalogServiceInterface
	validator *validator.Validate
}

func NewPricingHandler(
	prices service.PriceServiceInterface,
	queries service.QueryServiceInterface,
	catalog service.CatalogServiceInterface,
) *PricingHandler {
	return &PricingHandler{
		prices:    prices,
		queries:   queries,
		catalog:   catalog,
		validator: validator.New(),
	}
}

// === STORES ===

func (h *PricingHandler) ListStores(c *gin.Context) {
	stores, err := h.catalog.ListStores(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to get stores")
		return
	}

	c.JSON(http.StatusOK, entity.StoreListResponse{
		Stores: stores,
		Total:  len(stores),
	})
}

func (h *PricingHandler) GetStore(c *gin.Context) {
	store, err := h.catalog.GetStore(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to get store")
		return
	}

	c.JSON(http.StatusOK, store)
}

func (h *PricingHandler) CreateStore(c *gin.Context) {
	var req entity.CreateStoreRequest
	if !h.bind(c, &req) {
		return
	}

	store, err := h.catalog.CreateStore(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, "Failed to create store")
		return
	}

	c.JSON(http.StatusCreated, store)
}

func (h *PricingHandler) DeactivateStore(c *gin.Context) {
	if err := h.catalog.DeactivateStore(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err, "Failed to deactivate store")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Store deactivated successfully"})
}

func (h *PricingHandler) ActivateStore(c *gin.Context) {
	if err := h.catalog.ActivateStore(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err, "Failed to activate store")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Store activated successfully"})
}

// === ITEMS ===

// SearchItems - GET /items?search=&category=&store=&min_price=&max_price=&deals_only=&sort_by=&page=&limit=
func (h *PricingHandler) SearchItems(c *gin.Context) {
	query, err := parseSearchQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.queries.Search(c.Request.Context(), query)
	if err != nil {
		respondError(c, err, "Failed to search items")
		return
	}

	c.JSON(http.StatusOK, entity.SearchResponse{
		Items: entity.NewItemResponses(result.Items),
		Pagination: entity.Pagination{
			CurrentPage:  result.Page,
			TotalPages:   result.TotalPages,
			TotalItems:   result.TotalItems,
			ItemsPerPage: result.PageSize,
		},
	})
}

func (h *PricingHandler) GetFeaturedDeals(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		limit = parsed
	}

	items, err := h.queries.FeaturedDeals(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err, "Failed to get featured deals")
		return
	}

	c.JSON(http.StatusOK, entity.FeaturedDealsResponse{
		Items: entity.NewItemResponses(items),
		Total: len(items),
	})
}

func (h *PricingHandler) GetItem(c *gin.Context) {
	item, err := h.queries.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to get item")
		return
	}

	c.JSON(http.StatusOK, entity.NewItemResponse(item))
}

func (h *PricingHandler) ComparePrices(c *gin.Context) {
	comparison, err := h.queries.ComparePrices(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to compare prices")
		return
	}

	c.JSON(http.StatusOK, comparison)
}

func (h *PricingHandler) ListPrices(c *gin.Context) {
	itemID := c.Param("id")
	seq, err := h.prices.ListPrices(c.Request.Context(), itemID)
	if err != nil {
		respondError(c, err, "Failed to get prices")
		return
	}

	prices := []entity.PriceRecord{}
	for record := range seq {
		prices = append(prices, record)
	}

	c.JSON(http.StatusOK, entity.PriceListResponse{
		ItemID: itemID,
		Prices: prices,
	})
}

func (h *PricingHandler) GetPriceHistory(c *gin.Context) {
	itemID := c.Param("id")
	history, err := h.prices.History(c.Request.Context(), itemID)
	if err != nil {
		respondError(c, err, "Failed to get price history")
		return
	}

	c.JSON(http.StatusOK, entity.PriceHistoryResponse{
		ItemID:  itemID,
		History: history,
	})
}

func (h *PricingHandler) CreateItem(c *gin.Context) {
	var req entity.CreateItemRequest
	if !h.bind(c, &req) {
		return
	}

	item, err := h.catalog.CreateItem(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, "Failed to create item")
		return
	}

	c.JSON(http.StatusCreated, entity.NewItemResponse(item))
}

func (h *PricingHandler) UpdateItem(c *gin.Context) {
	var req entity.UpdateItemRequest
	if !h.bind(c, &req) {
		return
	}

	item, err := h.catalog.UpdateItem(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err, "Failed to update item")
		return
	}

	c.JSON(http.StatusOK, entity.NewItemResponse(item))
}

func (h *PricingHandler) DeleteItem(c *gin.Context) {
	if err := h.catalog.DeleteItem(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err, "Failed to delete item")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Item deleted successfully"})
}

// UpsertPrice - PUT /items/:id/prices/:store_id
func (h *PricingHandler) UpsertPrice(c *gin.Context) {
	var req entity.UpsertPriceRequest
	if !h.bind(c, &req) {
		return
	}

	inStock := true
	if req.InStock != nil {
		inStock = *req.InStock
	}

	item, err := h.prices.UpsertPrice(c.Request.Context(), entity.PriceSubmission{
		ItemID:        c.Param("id"),
		StoreID:       c.Param("store_id"),
		CurrentPrice:  req.CurrentPrice,
		OriginalPrice: req.OriginalPrice,
		InStock:       inStock,
	})
	if err != nil {
		respondError(c, err, "Failed to update price")
		return
	}

	c.JSON(http.StatusOK, entity.NewItemResponse(item))
}

func (h *PricingHandler) RemovePrice(c *gin.Context) {
	item, err := h.prices.RemovePrice(c.Request.Context(), c.Param("id"), c.Param("store_id"))
	if err != nil {
		respondError(c, err, "Failed to remove price")
		return
	}

	c.JSON(http.StatusOK, entity.NewItemResponse(item))
}

func (h *PricingHandler) RecomputeItem(c *gin.Context) {
	item, repaired, err := h.prices.Recompute(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to recompute item metrics")
		return
	}

	c.JSON(http.StatusOK, entity.RecomputeResponse{
		Item:     entity.NewItemResponse(item),
		Repaired: repaired,
	})
}

// bind разбирает JSON тело и валидирует его, при ошибке отвечает 400
func (h *PricingHandler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return false
	}

	if err := h.validator.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": formatValidationError(err)})
		return false
	}

	return true
}

// respondError переводит ошибки сервиса в HTTP статусы
func respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidPrice),
		errors.Is(err, service.ErrInvalidQuery),
		errors.Is(err, service.ErrInvalidStore),
		errors.Is(err, service.ErrInvalidItem):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrStoreAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		requestID, _ := c.Get("request_id")
		logger.Error().Err(err).Interface("request_id", requestID).Msg(fallback)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

func parseSearchQuery(c *gin.Context) (entity.SearchQuery, error) {
	query := entity.NewSearchQuery()
	query.Text = c.Query("search")
	query.Category = c.Query("category")
	query.StoreID = c.Query("store")

	if raw := firstQuery(c, "sort_by", "sortBy"); raw != "" {
		query.SortKey = raw
	}

	var err error
	if query.MinPrice, err = parseFloatParam(c, "min_price", "minPrice"); err != nil {
		return query, err
	}
	if query.MaxPrice, err = parseFloatParam(c, "max_price", "maxPrice"); err != nil {
		return query, err
	}

	if raw := firstQuery(c, "deals_only", "dealsOnly"); raw != "" {
		dealsOnly, err := strconv.ParseBool(raw)
		if err != nil {
			return query, errors.New("deals_only must be a boolean")
		}
		query.DealsOnly = dealsOnly
	}

	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			return query, errors.New("page must be an integer")
		}
		query.Page = page
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return query, errors.New("limit must be an integer")
		}
		query.PageSize = limit
	}

	return query, nil
}

func parseFloatParam(c *gin.Context, names ...string) (*float64, error) {
	raw := firstQuery(c, names...)
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, errors.New(names[0] + " must be a number")
	}
	return &value, nil
}

// firstQuery возвращает первый непустой параметр из списка (snake_case и camelCase варианты)
func firstQuery(c *gin.Context, names ...string) string {
	for _, name := range names {
		if value := strings.TrimSpace(c.Query(name)); value != "" {
			return value
		}
	}
	return ""
}

func formatValidationError(err error) string {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, fieldError := range validationErrors {
			return fieldError.Field() + " is " + fieldError.Tag()
		}
	}
	return "Validation failed"
}
