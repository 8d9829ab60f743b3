package entity

import "strings"

const (
	DefaultPage          = 1
	DefaultPageSize      = 20
	DefaultFeaturedLimit = 10
)

type SortKey string

const (
	SortByName      SortKey = "name"
	SortByPriceAsc  SortKey = "priceAsc"
	SortByPriceDesc SortKey = "priceDesc"
	SortByDealScore SortKey = "dealScore"
	SortByNewest    SortKey = "newest"
)

// sortKeyAliases - имена сортировок из старого API (?sortBy=price_low)
var sortKeyAliases = map[string]SortKey{
	"price_low":  SortByPriceAsc,
	"price_high": SortByPriceDesc,
	"deal_score": SortByDealScore,
}

// ParseSortKey нормализует ключ сортировки, пустая строка означает сортировку по имени
func ParseSortKey(raw string) (SortKey, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return SortByName, true
	}
	switch key := SortKey(raw); key {
	case SortByName, SortByPriceAsc, SortByPriceDesc, SortByDealScore, SortByNewest:
		return key, true
	}
	if key, ok := sortKeyAliases[raw]; ok {
		return key, true
	}
	return "", false
}

// SearchQuery - параметры поиска по каталогу.
// Нулевое значение невалидно (Page и PageSize должны быть > 0), используйте NewSearchQuery.
type SearchQuery struct {
	Text      string
	Category  string
	StoreID   string
	MinPrice  *float64
	MaxPrice  *float64
	DealsOnly bool
	SortKey   string
	Page      int
	PageSize  int
}

func NewSearchQuery() SearchQuery {
	return SearchQuery{
		SortKey:  string(SortByName),
		Page:     DefaultPage,
		PageSize: DefaultPageSize,
	}
}

// Filter возвращает предикаты, которые хранилище может выполнить на своей стороне
func (q SearchQuery) Filter() ItemFilter {
	return ItemFilter{
		Text:      strings.TrimSpace(q.Text),
		Category:  q.Category,
		StoreID:   q.StoreID,
		MinPrice:  q.MinPrice,
		MaxPrice:  q.MaxPrice,
		DealsOnly: q.DealsOnly,
	}
}

// ItemFilter - фильтр для репозитория. Репозиторий может вернуть надмножество,
// окончательная фильтрация выполняется в сервисе.
type ItemFilter struct {
	Text      string
	Category  string
	StoreID   string
	MinPrice  *float64
	MaxPrice  *float64
	DealsOnly bool
}

// Matches проверяет товар против всех предикатов фильтра
func (f ItemFilter) Matches(item *Item) bool {
	if f.Category != "" && item.Category != f.Category {
		return false
	}
	if f.StoreID != "" {
		if _, ok := item.Prices[f.StoreID]; !ok {
			return false
		}
	}
	if f.DealsOnly && !item.IsOnSale {
		return false
	}
	if f.MinPrice != nil || f.MaxPrice != nil {
		if item.AveragePrice == nil {
			return false
		}
		if f.MinPrice != nil && *item.AveragePrice < *f.MinPrice {
			return false
		}
		if f.MaxPrice != nil && *item.AveragePrice > *f.MaxPrice {
			return false
		}
	}
	if f.Text != "" {
		needle := strings.ToLower(f.Text)
		if !strings.Contains(strings.ToLower(item.Name), needle) &&
			!strings.Contains(strings.ToLower(item.Category), needle) &&
			!strings.Contains(strings.ToLower(item.Brand), needle) {
			return false
		}
	}
	return true
}

type SearchResult struct {
	Items      []Item
	TotalItems int
	TotalPages int
	Page       int
	PageSize   int
}
