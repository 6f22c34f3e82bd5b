package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"brewmate-engine/internal/config"
	"brewmate-engine/internal/models"
	"brewmate-engine/internal/pkg/logger"
	"brewmate-engine/internal/services"
)

type seedFile struct {
	Products []models.Product `json:"products"`
}

func main() {
	dataPath := flag.String("data", "data/products.json", "Path to the product seed file")
	reset := flag.Bool("reset", false, "Delete existing products and orders before seeding")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log, *dataPath, *reset); err != nil {
		log.WithError(err).Error("seeding failed")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger, dataPath string, reset bool) error {
	raw, err := os.ReadFile(dataPath)
	if err != nil {
		return fmt.Errorf("failed to read seed file %s: %w", dataPath, err)
	}

	var seed seedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("invalid seed file %s: %w", dataPath, err)
	}
	if len(seed.Products) == 0 {
		return fmt.Errorf("seed file %s contains no products", dataPath)
	}

	ctx := context.Background()

	catalog, err := services.NewCatalogService(ctx, cfg.Postgres, log)
	if err != nil {
		return fmt.Errorf("failed to connect to catalog store: %w", err)
	}
	defer catalog.Close()

	if err := catalog.EnsureSchema(ctx); err != nil {
		return err
	}

	if reset {
		if err := catalog.DeleteAllProducts(ctx); err != nil {
			return err
		}
		log.Info("Existing catalog cleared")
	}

	for _, product := range seed.Products {
		if err := catalog.UpsertProduct(ctx, product); err != nil {
			return fmt.Errorf("failed to seed product %s: %w", product.ID, err)
		}
	}

	log.Info("Catalog seeded", "products", len(seed.Products))
	return nil
}
