package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Qirrat098/ShopSmart/pkg/metrics"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/entity"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool - подмножество *pgxpool.Pool, используемое репозиторием
type PgxPool interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// readSnapshot - товар и его цены читаются из одного снимка
var readSnapshot = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS items (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	category       TEXT NOT NULL,
	brand          TEXT NOT NULL DEFAULT '',
	unit           TEXT NOT NULL DEFAULT '',
	image_url      TEXT NOT NULL DEFAULT '',
	tags           TEXT[] NOT NULL DEFAULT '{}',
	cheapest_price DOUBLE PRECISION,
	cheapest_store TEXT,
	average_price  DOUBLE PRECISION,
	lowest_price   DOUBLE PRECISION,
	highest_price  DOUBLE PRECISION,
	deal_score     DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_on_sale     BOOLEAN NOT NULL DEFAULT FALSE,
	version        BIGINT NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS items_category_idx ON items (category);
CREATE INDEX IF NOT EXISTS items_average_price_idx ON items (average_price);
CREATE INDEX IF NOT EXISTS items_deal_score_idx ON items (deal_score DESC);

CREATE TABLE IF NOT EXISTS price_records (
	item_id        TEXT NOT NULL REFERENCES items (id) ON DELETE CASCADE,
	store_id       TEXT NOT NULL,
	current_price  DOUBLE PRECISION NOT NULL CHECK (current_price > 0),
	original_price DOUBLE PRECISION NOT NULL CHECK (original_price >= current_price),
	discount       DOUBLE PRECISION NOT NULL,
	in_stock       BOOLEAN NOT NULL,
	last_updated   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (item_id, store_id)
);
CREATE INDEX IF NOT EXISTS price_records_store_idx ON price_records (store_id);

CREATE TABLE IF NOT EXISTS price_history (
	id          BIGSERIAL PRIMARY KEY,
	item_id     TEXT NOT NULL REFERENCES items (id) ON DELETE CASCADE,
	store_id    TEXT NOT NULL,
	price       DOUBLE PRECISION NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS price_history_item_idx ON price_history (item_id);
`

const itemColumns = `id, name, category, brand, unit, image_url, tags,
	cheapest_price, cheapest_store, average_price, lowest_price, highest_price, deal_score, is_on_sale,
	version, created_at, updated_at`

// postgresItemRepository хранит товары в трёх таблицах: items, price_records, price_history
type postgresItemRepository struct {
	pool PgxPool
}

func NewPostgresItemRepository(pool PgxPool) ItemRepository {
	return &postgresItemRepository{pool: pool}
}

// MigratePostgres создает таблицы товаров, если их нет
func MigratePostgres(ctx context.Context, pool PgxPool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to migrate item tables: %w", err)
	}
	return nil
}

func (r *postgresItemRepository) Create(ctx context.Context, item *entity.Item) error {
	timer := metrics.NewDbTimer(serviceName, metrics.DbOpInsert, "items")
	defer timer.ObserveDuration()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO items (`+itemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		item.ID, item.Name, item.Category, item.Brand, item.Unit, item.ImageURL, tags,
		item.CheapestPrice, item.CheapestStore, item.AveragePrice, item.LowestPrice, item.HighestPrice,
		item.DealScore, item.IsOnSale, item.Version, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		metrics.RecordDbError(serviceName, metrics.DbOpInsert)
		return fmt.Errorf("failed to create item: %w", err)
	}

	for _, record := range item.Prices {
		if err := upsertPriceRecord(ctx, tx, item.ID, record); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *postgresItemRepository) GetByID(ctx context.Context, id string) (*entity.Item, error) {
	timer := metrics.NewDbTimer(serviceName, metrics.DbOpSelect, "items")
	defer timer.ObserveDuration()

	tx, err := r.pool.BeginTx(ctx, readSnapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
	if err != nil {
		metrics.RecordDbError(serviceName, metrics.DbOpSelect)
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrItemNotFound
	}

	if err := loadPrices(ctx, tx, items); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &items[0], nil
}

func (r *postgresItemRepository) Find(ctx context.Context, filter entity.ItemFilter) ([]entity.Item, error) {
	timer := metrics.NewDbTimer(serviceName, metrics.DbOpSelect, "items")
	defer timer.ObserveDuration()

	tx, err := r.pool.BeginTx(ctx, readSnapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query, args := buildFindQuery(filter)
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		metrics.RecordDbError(serviceName, metrics.DbOpSelect)
		return nil, fmt.Errorf("failed to find items: %w", err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}

	if err := loadPrices(ctx, tx, items); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return items, nil
}

func (r *postgresItemRepository) ListIDs(ctx context.Context) ([]string, error) {
	tx, err := r.pool.BeginTx(ctx, readSnapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT id FROM items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list item ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan item ids: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return ids, nil
}

func (r *postgresItemRepository) UpdateDetails(ctx context.Context, item *entity.Item) error {
	timer := metrics.NewDbTimer(serviceName, metrics.DbOpUpdate, "items")
	defer timer.ObserveDuration()

	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE items
		SET name = $2, category = $3, brand = $4, unit = $5, image_url = $6, tags = $7, updated_at = $8
		WHERE id = $1`,
		item.ID, item.Name, item.Category, item.Brand, item.Unit, item.ImageURL, tags, item.UpdatedAt,
	)
	if err != nil {
		metrics.RecordDbError(serviceName, metrics.DbOpUpdate)
		return fmt.Errorf("failed to update item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}

	return nil
}

func (r *postgresItemRepository) Delete(ctx context.Context, id string) error {
	timer := metrics.NewDbTimer(serviceName, metrics.DbOpDelete, "items")
	defer timer.ObserveDuration()

	tag, err := r.pool.Exec(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		metrics.RecordDbError(serviceName, metrics.DbOpDelete)
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}

	return nil
}

func (r *postgresItemRepository) History(ctx context.Context, id string) ([]entity.PriceHistoryEntry, error) {
	tx, err := r.pool.BeginTx(ctx, readSnapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check item: %w", err)
	}
	if !exists {
		return nil, ErrItemNotFound
	}

	rows, err := tx.Query(ctx, `
		SELECT store_id, price, recorded_at
		FROM price_history
		WHERE item_id = $1
		ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get price history: %w", err)
	}
	history, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.PriceHistoryEntry, error) {
		var entry entity.PriceHistoryEntry
		err := row.Scan(&entry.StoreID, &entry.Price, &entry.RecordedAt)
		return entry, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan price history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return history, nil
}

// ApplyPriceChange: UPDATE items с проверкой версии берет блокировку строки,
// остальные изменения выполняются в той же транзакции
func (r *postgresItemRepository) ApplyPriceChange(ctx context.Context, change PriceChange) error {
	timer := metrics.NewDbTimer(serviceName, metrics.DbOpUpdate, "items")
	defer timer.ObserveDuration()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	m := change.Metrics
	tag, err := tx.Exec(ctx, `
		UPDATE items
		SET cheapest_price = $3, cheapest_store = $4, average_price = $5, lowest_price = $6,
			highest_price = $7, deal_score = $8, is_on_sale = $9, updated_at = $10, version = version + 1
		WHERE id = $1 AND version = $2`,
		change.ItemID, change.ExpectedVersion,
		m.CheapestPrice, m.CheapestStore, m.AveragePrice, m.LowestPrice, m.HighestPrice,
		m.DealScore, m.IsOnSale, change.UpdatedAt,
	)
	if err != nil {
		metrics.RecordDbError(serviceName, metrics.DbOpUpdate)
		return fmt.Errorf("failed to update item metrics: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)`, change.ItemID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check item: %w", err)
		}
		if !exists {
			return ErrItemNotFound
		}
		return ErrVersionConflict
	}

	if change.Upsert != nil {
		if err := upsertPriceRecord(ctx, tx, change.ItemID, *change.Upsert); err != nil {
			return err
		}
	}

	if change.RemoveStoreID != "" {
		tag, err := tx.Exec(ctx, `DELETE FROM price_records WHERE item_id = $1 AND store_id = $2`,
			change.ItemID, change.RemoveStoreID)
		if err != nil {
			return fmt.Errorf("failed to delete price record: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrPriceNotFound
		}
	}

	if h := change.History; h != nil {
		_, err := tx.Exec(ctx, `
			INSERT INTO price_history (item_id, store_id, price, recorded_at)
			VALUES ($1, $2, $3, $4)`,
			change.ItemID, h.StoreID, h.Price, h.RecordedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to append price history: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func upsertPriceRecord(ctx context.Context, tx pgx.Tx, itemID string, record entity.PriceRecord) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO price_records (item_id, store_id, current_price, original_price, discount, in_stock, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (item_id, store_id) DO UPDATE
		SET current_price = EXCLUDED.current_price,
			original_price = EXCLUDED.original_price,
			discount = EXCLUDED.discount,
			in_stock = EXCLUDED.in_stock,
			last_updated = EXCLUDED.last_updated`,
		itemID, record.StoreID, record.CurrentPrice, record.OriginalPrice, record.Discount, record.InStock, record.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert price record: %w", err)
	}
	return nil
}

func scanItems(rows pgx.Rows) ([]entity.Item, error) {
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.Item, error) {
		var item entity.Item
		err := row.Scan(
			&item.ID, &item.Name, &item.Category, &item.Brand, &item.Unit, &item.ImageURL, &item.Tags,
			&item.CheapestPrice, &item.CheapestStore, &item.AveragePrice, &item.LowestPrice, &item.HighestPrice,
			&item.DealScore, &item.IsOnSale, &item.Version, &item.CreatedAt, &item.UpdatedAt,
		)
		item.Prices = map[string]entity.PriceRecord{}
		return item, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan items: %w", err)
	}
	return items, nil
}

// loadPrices подгружает цены для всех товаров одним запросом
func loadPrices(ctx context.Context, tx pgx.Tx, items []entity.Item) error {
	if len(items) == 0 {
		return nil
	}

	index := make(map[string]int, len(items))
	ids := make([]string, 0, len(items))
	for i := range items {
		index[items[i].ID] = i
		ids = append(ids, items[i].ID)
	}

	rows, err := tx.Query(ctx, `
		SELECT item_id, store_id, current_price, original_price, discount, in_stock, last_updated
		FROM price_records
		WHERE item_id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("failed to load price records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var itemID string
		var record entity.PriceRecord
		if err := rows.Scan(&itemID, &record.StoreID, &record.CurrentPrice, &record.OriginalPrice,
			&record.Discount, &record.InStock, &record.LastUpdated); err != nil {
			return fmt.Errorf("failed to scan price record: %w", err)
		}
		if i, ok := index[itemID]; ok {
			items[i].Prices[record.StoreID] = record
		}
	}

	return rows.Err()
}

// buildFindQuery переносит фильтры поиска в WHERE
func buildFindQuery(filter entity.ItemFilter) (string, []any) {
	var conditions []string
	var args []any

	arg := func(value any) string {
		args = append(args, value)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Category != "" {
		conditions = append(conditions, "category = "+arg(filter.Category))
	}
	if filter.StoreID != "" {
		conditions = append(conditions,
			"EXISTS (SELECT 1 FROM price_records pr WHERE pr.item_id = items.id AND pr.store_id = "+arg(filter.StoreID)+")")
	}
	if filter.DealsOnly {
		conditions = append(conditions, "is_on_sale")
	}
	if filter.MinPrice != nil {
		conditions = append(conditions, "average_price >= "+arg(*filter.MinPrice))
	}
	if filter.MaxPrice != nil {
		conditions = append(conditions, "average_price <= "+arg(*filter.MaxPrice))
	}
	if filter.Text != "" {
		pattern := arg("%" + escapeLike(filter.Text) + "%")
		conditions = append(conditions,
			"(name ILIKE "+pattern+" OR category ILIKE "+pattern+" OR brand ILIKE "+pattern+")")
	}

	query := "SELECT " + itemColumns + " FROM items"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id"

	return query, args
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}
