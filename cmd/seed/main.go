// Package main provides a tool to seed a remote store with a sample collection.
//
// It creates products with prices and tags, a few purchases, inventory items in
// every status and a reserved sale, so the API and the table views have data to
// show.
//
// Usage:
//
//	DB_PATH=./collectr.db go run ./cmd/seed
//	REMOTE_DRIVER=postgres DATABASE_URL=postgres://... go run ./cmd/seed --items 200
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand/v2"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/collectr/collectr/internal/config"
	"github.com/collectr/collectr/internal/domain"
	"github.com/collectr/collectr/internal/id"
	"github.com/collectr/collectr/internal/remote"
	"github.com/collectr/collectr/internal/remote/sqlstore"
)

var items = flag.Int("items", 60, "Number of inventory items to create")

type sampleProduct struct {
	title    string
	typ      string
	year     int
	region   string
	loose    string
	complete string
}

var catalog = []sampleProduct{
	{"The Legend of Zelda", "Game", 1986, "PAL", "35.00", "120.00"},
	{"Super Metroid", "Game", 1994, "NTSC", "45.00", "160.00"},
	{"Chrono Trigger", "Game", 1995, "NTSC", "80.00", "300.00"},
	{"Sonic the Hedgehog", "Game", 1991, "PAL", "12.00", "30.00"},
	{"Asteroids", "Game", 1979, "NTSC", "8.00", "25.00"},
	{"Game Boy", "Console", 1989, "PAL", "60.00", "150.00"},
	{"Mega Drive", "Console", 1990, "PAL", "55.00", "140.00"},
	{"Super Nintendo Controller", "Accessory", 1992, "PAL", "15.00", "40.00"},
}

func main() {
	flag.Parse()
	ctx := context.Background()

	driver := envOr("REMOTE_DRIVER", config.DriverSQLite)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	var (
		s   *sqlstore.Store
		err error
	)
	switch driver {
	case config.DriverPostgres:
		s, err = sqlstore.OpenPostgres(ctx, os.Getenv("DATABASE_URL"), logger)
	default:
		path := envOr("DB_PATH", "./collectr.db")
		fmt.Printf("Opening database at: %s\n", path)
		s, err = sqlstore.OpenSQLite(path, logger)
	}
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	batch := id.MustGenerate("seed")
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))

	products := seedProducts(ctx, s)
	productTags, inventoryTags := seedTags(ctx, s)
	purchases := seedPurchases(ctx, s, rng, batch)

	// Tag roughly half the products.
	for _, p := range products {
		if rng.IntN(2) == 0 {
			insert(ctx, s, "product_tag_relationships", remote.Row{
				"product_id": p, "tag_id": productTags[0], "value": domain.BooleanTagValue,
			})
		}
	}

	statuses := []domain.InventoryStatus{domain.StatusNormal, domain.StatusCollection, domain.StatusForSale}
	var forSale []int64
	for n := range *items {
		status := statuses[rng.IntN(len(statuses))]
		row := remote.Row{
			"product_id":       products[rng.IntN(len(products))],
			"inventory_status": string(status),
			"purchase_id":      purchases[rng.IntN(len(purchases))],
			"inventory_notes":  batch,
		}
		if status == domain.StatusForSale {
			row["override_price"] = decimal.NewFromInt(int64(10 + rng.IntN(190))).StringFixed(2)
		}
		itemID := insert(ctx, s, "inventory", row)
		if status == domain.StatusForSale {
			forSale = append(forSale, itemID)
		}

		insert(ctx, s, "inventory_barcodes", remote.Row{
			"inventory_id": itemID, "barcode": fmt.Sprintf("400%010d", n+1),
		})
		insert(ctx, s, "inventory_tag_relationships", remote.Row{
			"inventory_id": itemID, "tag_id": inventoryTags[0], "value": []string{"Mint", "Good", "Worn"}[rng.IntN(3)],
		})
	}

	// Store triggers bump the master timestamp, so running servers pick the
	// batch up on their next poll.
	reserved := seedSale(ctx, s, forSale)

	fmt.Printf("\nSeeded batch %s\n", batch)
	fmt.Printf("  %d products, %d purchases, %d items (%d reserved in a sale)\n",
		len(products), len(purchases), *items, reserved)
}

func seedProducts(ctx context.Context, s *sqlstore.Store) []int64 {
	ids := make([]int64, 0, len(catalog))
	for _, p := range catalog {
		productID := insert(ctx, s, "products", remote.Row{
			"product_title": p.title,
			"product_type":  p.typ,
			"release_year":  p.year,
			"region":        p.region,
		})
		insert(ctx, s, "product_prices", remote.Row{
			"product_id": productID, "price_type": string(domain.ConditionLoose), "price": p.loose,
		})
		insert(ctx, s, "product_prices", remote.Row{
			"product_id": productID, "price_type": string(domain.ConditionComplete), "price": p.complete,
		})
		ids = append(ids, productID)
	}
	fmt.Printf("Created %d products\n", len(ids))
	return ids
}

func seedTags(ctx context.Context, s *sqlstore.Store) (product, inventory []int64) {
	product = append(product, insert(ctx, s, "product_tags", remote.Row{
		"name":          "Favourite",
		"tag_type":      string(domain.TagBoolean),
		"display_type":  "icon",
		"display_value": "star",
	}))
	inventory = append(inventory, insert(ctx, s, "inventory_tags", remote.Row{
		"name":          "Condition",
		"tag_type":      string(domain.TagSet),
		"tag_values":    []string{"Mint", "Good", "Worn"},
		"display_type":  "text",
		"display_value": "Cond.",
	}))
	fmt.Println("Created tags")
	return product, inventory
}

func seedPurchases(ctx context.Context, s *sqlstore.Store, rng *rand.Rand, batch string) []int64 {
	sellers := []string{"Flea market", "Online auction", "Retro shop"}
	ids := make([]int64, 0, len(sellers))
	for n, seller := range sellers {
		date := time.Now().AddDate(0, -n-1, -rng.IntN(28)).Format(time.DateOnly)
		ids = append(ids, insert(ctx, s, "purchases", remote.Row{
			"seller_name":    seller,
			"purchase_date":  date,
			"purchase_cost":  strconv.Itoa(50+rng.IntN(450)) + ".00",
			"purchase_notes": batch,
		}))
	}
	fmt.Printf("Created %d purchases\n", len(ids))
	return ids
}

// seedSale reserves up to three items that are for sale and returns how many.
func seedSale(ctx context.Context, s *sqlstore.Store, forSale []int64) int {
	if len(forSale) == 0 {
		return 0
	}
	saleID := insert(ctx, s, "sales", remote.Row{
		"buyer_name":  "Sample buyer",
		"sale_status": string(domain.SaleReserved),
		"sale_date":   time.Now().Format(time.DateOnly),
	})

	reserved := forSale[:min(3, len(forSale))]
	for _, itemID := range reserved {
		row, err := s.Update(ctx, "inventory", itemID, remote.Row{"sale_id": saleID})
		if err != nil {
			log.Fatalf("Failed to reserve item %d: %v", itemID, err)
		}
		price := "0"
		if v, ok := row["override_price"].(string); ok {
			price = v
		}
		insert(ctx, s, "sale_items", remote.Row{"sale_id": saleID, "inventory_id": itemID, "sold_price": price})
	}
	return len(reserved)
}

func insert(ctx context.Context, s *sqlstore.Store, table string, row remote.Row) int64 {
	out, err := s.Insert(ctx, table, row)
	if err != nil {
		log.Fatalf("Failed to insert into %s: %v", table, err)
	}
	rowID, ok := out.ID()
	if !ok {
		log.Fatalf("Insert into %s returned no id", table)
	}
	return rowID
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
