package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"brewmate-engine/internal/config"
	"brewmate-engine/internal/models"
	"brewmate-engine/internal/pkg/logger"
)

// CatalogService is the Postgres-backed product and order store.
type CatalogService struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

func NewCatalogService(ctx context.Context, cfg config.PostgresConfig, log *logger.Logger) (*CatalogService, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("Catalog service initialized", "max_conns", poolConfig.MaxConns)

	return &CatalogService{pool: pool, logger: log}, nil
}

func (service *CatalogService) ListProducts(ctx context.Context) ([]models.Product, error) {
	startTime := time.Now()

	rows, err := service.pool.Query(ctx,
		`SELECT id, name, description, price, category, image_url, rating
		 FROM products
		 ORDER BY id`)
	if err != nil {
		service.logger.LogService("catalog", "list_products", time.Since(startTime), nil, err)
		return nil, models.NewStoreError("CATALOG_QUERY_FAILED", "Failed to list products").WithCause(err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var product models.Product
		if err := rows.Scan(&product.ID, &product.Name, &product.Description,
			&product.Price, &product.Category, &product.ImageURL, &product.Rating); err != nil {
			return nil, models.NewStoreError("CATALOG_SCAN_FAILED", "Failed to read product row").WithCause(err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, models.NewStoreError("CATALOG_QUERY_FAILED", "Failed to list products").WithCause(err)
	}

	service.logger.LogService("catalog", "list_products", time.Since(startTime), map[string]interface{}{
		"count": len(products),
	}, nil)

	return products, nil
}

func (service *CatalogService) FindProduct(ctx context.Context, productID string) (*models.Product, error) {
	var product models.Product

	err := service.pool.QueryRow(ctx,
		`SELECT id, name, description, price, category, image_url, rating
		 FROM products WHERE id = $1`, productID).
		Scan(&product.ID, &product.Name, &product.Description,
			&product.Price, &product.Category, &product.ImageURL, &product.Rating)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrProductNotFound.WithMetadata("product_id", productID)
		}
		return nil, models.NewStoreError("CATALOG_QUERY_FAILED", "Failed to find product").WithCause(err)
	}

	return &product, nil
}

// PlaceOrder reads the authoritative price, computes the total and inserts the
// order record in one transaction, so a concurrent price change can never
// produce a total that disagrees with the inserted row.
func (service *CatalogService) PlaceOrder(ctx context.Context, productID string, quantity int) (*models.OrderRecord, error) {
	startTime := time.Now()

	if productID == "" {
		return nil, models.NewValidationError("INVALID_ORDER_PARAMS", "Invalid parameters")
	}
	if quantity <= 0 {
		return nil, models.NewValidationError("INVALID_ORDER_QUANTITY", "Quantity must be positive")
	}

	tx, err := service.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, models.NewStoreError("ORDER_TX_FAILED", "Failed to start order transaction").WithCause(err)
	}
	defer tx.Rollback(ctx)

	var price float64
	err = tx.QueryRow(ctx, `SELECT price FROM products WHERE id = $1`, productID).Scan(&price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrProductNotFound.WithMetadata("product_id", productID)
		}
		return nil, models.NewStoreError("ORDER_PRICE_LOOKUP_FAILED", "Failed to read product price").WithCause(err)
	}

	record := &models.OrderRecord{
		ID:        uuid.New().String(),
		ProductID: productID,
		Quantity:  quantity,
		Total:     price * float64(quantity),
		CreatedAt: time.Now().UTC(),
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO orders (id, product_id, quantity, total, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		record.ID, record.ProductID, record.Quantity, record.Total, record.CreatedAt)
	if err != nil {
		return nil, models.NewStoreError("ORDER_INSERT_FAILED", "Failed to persist order").WithCause(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, models.NewStoreError("ORDER_COMMIT_FAILED", "Failed to commit order").WithCause(err)
	}

	service.logger.LogService("catalog", "place_order", time.Since(startTime), map[string]interface{}{
		"order_id":   record.ID,
		"product_id": productID,
		"quantity":   quantity,
		"total":      record.Total,
	}, nil)

	return record, nil
}

// EnsureSchema creates the catalog tables. Used by the seed tool; the server
// assumes the schema already exists.
func (service *CatalogService) EnsureSchema(ctx context.Context) error {
	_, err := service.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS products (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			price       DOUBLE PRECISION NOT NULL,
			category    TEXT NOT NULL DEFAULT '',
			image_url   TEXT NOT NULL DEFAULT '',
			rating      DOUBLE PRECISION NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS orders (
			id         TEXT PRIMARY KEY,
			product_id TEXT NOT NULL REFERENCES products(id),
			quantity   INTEGER NOT NULL,
			total      DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`)
	if err != nil {
		return models.NewStoreError("SCHEMA_FAILED", "Failed to ensure catalog schema").WithCause(err)
	}
	return nil
}

func (service *CatalogService) UpsertProduct(ctx context.Context, product models.Product) error {
	_, err := service.pool.Exec(ctx,
		`INSERT INTO products (id, name, description, price, category, image_url, rating)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			category = EXCLUDED.category,
			image_url = EXCLUDED.image_url,
			rating = EXCLUDED.rating`,
		product.ID, product.Name, product.Description, product.Price,
		product.Category, product.ImageURL, product.Rating)
	if err != nil {
		return models.NewStoreError("PRODUCT_UPSERT_FAILED", "Failed to upsert product").WithCause(err)
	}
	return nil
}

func (service *CatalogService) DeleteAllProducts(ctx context.Context) error {
	_, err := service.pool.Exec(ctx, `DELETE FROM orders; DELETE FROM products;`)
	if err != nil {
		return models.NewStoreError("CATALOG_CLEAR_FAILED", "Failed to clear catalog").WithCause(err)
	}
	return nil
}

func (service *CatalogService) HealthCheck(ctx context.Context) error {
	if err := service.pool.Ping(ctx); err != nil {
		return fmt.Errorf("catalog connection unhealthy: %w", err)
	}
	return nil
}

func (service *CatalogService) Close() error {
	service.pool.Close()
	service.logger.Info("Catalog service closed")
	return nil
}
