package seed

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Qirrat098/ShopSmart/pkg/logger"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/entity"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/service"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// File - содержимое YAML файла с начальным каталогом.
// Цены ссылаются на магазины по имени, производные метрики в файле не хранятся.
type File struct {
	Stores []StoreSeed `yaml:"stores"`
	Items  []ItemSeed  `yaml:"items"`
}

type StoreSeed struct {
	Name      string   `yaml:"name"`
	Kind      string   `yaml:"kind"`
	LogoURL   string   `yaml:"logo_url"`
	Website   string   `yaml:"website"`
	Address   string   `yaml:"address"`
	City      string   `yaml:"city"`
	Latitude  *float64 `yaml:"latitude"`
	Longitude *float64 `yaml:"longitude"`
}

type ItemSeed struct {
	Name     string      `yaml:"name"`
	Category string      `yaml:"category"`
	Brand    string      `yaml:"brand"`
	Unit     string      `yaml:"unit"`
	ImageURL string      `yaml:"image_url"`
	Tags     []string    `yaml:"tags"`
	Prices   []PriceSeed `yaml:"prices"`
}

type PriceSeed struct {
	Store         string   `yaml:"store"`
	CurrentPrice  float64  `yaml:"current_price"`
	OriginalPrice *float64 `yaml:"original_price"`
	InStock       *bool    `yaml:"in_stock"`
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &file, nil
}

// StoreLister отдаёт все магазины, включая неактивные
type StoreLister interface {
	List(ctx context.Context, activeOnly bool) ([]entity.Store, error)
}

type Result struct {
	StoresCreated int
	StoresReused  int
	ItemsCreated  int
	ItemsSkipped  int
}

// Seeder загружает каталог через CatalogService, поэтому метрики
// считаются тем же кодом, что и при работе через API.
// Повторный запуск ничего не дублирует: магазины и товары ищутся по имени.
// lookupPageSize - размер страницы при проверке существования товара
const lookupPageSize = 100

type Seeder struct {
	stores  StoreLister
	catalog service.CatalogServiceInterface
	queries service.QueryServiceInterface
	log     zerolog.Logger
}

func NewSeeder(stores StoreLister, catalog service.CatalogServiceInterface, queries service.QueryServiceInterface) *Seeder {
	return &Seeder{
		stores:  stores,
		catalog: catalog,
		queries: queries,
		log:     logger.Component("seed"),
	}
}

func (s *Seeder) Run(ctx context.Context, file *File) (*Result, error) {
	result := &Result{}

	storeIDs, err := s.seedStores(ctx, file.Stores, result)
	if err != nil {
		return result, err
	}

	for _, item := range file.Items {
		exists, err := s.itemExists(ctx, item.Name)
		if err != nil {
			return result, err
		}
		if exists {
			s.log.Debug().Str("item", item.Name).Msg("item already exists, skipping")
			result.ItemsSkipped++
			continue
		}

		req, err := item.request(storeIDs)
		if err != nil {
			return result, err
		}

		created, err := s.catalog.CreateItem(ctx, req)
		if err != nil {
			return result, fmt.Errorf("failed to create item %q: %w", item.Name, err)
		}
		result.ItemsCreated++
		s.log.Info().
			Str("item_id", created.ID).
			Str("item", created.Name).
			Int("prices", len(created.Prices)).
			Msg("item seeded")
	}

	s.log.Info().
		Int("stores_created", result.StoresCreated).
		Int("stores_reused", result.StoresReused).
		Int("items_created", result.ItemsCreated).
		Int("items_skipped", result.ItemsSkipped).
		Msg("seeding completed")

	return result, nil
}

// seedStores возвращает соответствие имя магазина -> ID
func (s *Seeder) seedStores(ctx context.Context, seeds []StoreSeed, result *Result) (map[string]string, error) {
	existing, err := s.stores.List(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}

	ids := make(map[string]string, len(existing)+len(seeds))
	for _, store := range existing {
		ids[store.Name] = store.ID
	}

	for _, seed := range seeds {
		name := strings.TrimSpace(seed.Name)
		if _, ok := ids[name]; ok {
			result.StoresReused++
			continue
		}

		store, err := s.catalog.CreateStore(ctx, &entity.CreateStoreRequest{
			Name:      name,
			Kind:      entity.StoreKind(seed.Kind),
			LogoURL:   seed.LogoURL,
			Website:   seed.Website,
			Address:   seed.Address,
			City:      seed.City,
			Latitude:  seed.Latitude,
			Longitude: seed.Longitude,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create store %q: %w", name, err)
		}
		ids[store.Name] = store.ID
		result.StoresCreated++
		s.log.Info().Str("store_id", store.ID).Str("store", store.Name).Msg("store seeded")
	}

	return ids, nil
}

// itemExists ищет товар с точно таким же именем среди всех страниц полнотекстового поиска
func (s *Seeder) itemExists(ctx context.Context, name string) (bool, error) {
	query := entity.NewSearchQuery()
	query.Text = name
	query.PageSize = lookupPageSize

	for {
		found, err := s.queries.Search(ctx, query)
		if err != nil {
			return false, fmt.Errorf("failed to look up item %q: %w", name, err)
		}
		for _, item := range found.Items {
			if strings.EqualFold(item.Name, name) {
				return true, nil
			}
		}
		if query.Page >= found.TotalPages {
			return false, nil
		}
		query.Page++
	}
}

func (i ItemSeed) request(storeIDs map[string]string) (*entity.CreateItemRequest, error) {
	prices := make([]entity.PriceInput, 0, len(i.Prices))
	for _, price := range i.Prices {
		storeID, ok := storeIDs[strings.TrimSpace(price.Store)]
		if !ok {
			return nil, fmt.Errorf("item %q: %w: %q", i.Name, service.ErrStoreNotFound, price.Store)
		}
		prices = append(prices, entity.PriceInput{
			StoreID:       storeID,
			CurrentPrice:  price.CurrentPrice,
			OriginalPrice: price.OriginalPrice,
			InStock:       price.InStock,
		})
	}

	return &entity.CreateItemRequest{
		Name:     i.Name,
		Category: i.Category,
		Brand:    i.Brand,
		Unit:     i.Unit,
		ImageURL: i.ImageURL,
		Tags:     i.Tags,
		Prices:   prices,
	}, nil
}
