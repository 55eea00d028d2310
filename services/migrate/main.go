package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"
)

// Statements executados em ordem; todos são idempotentes (IF NOT EXISTS)
var schema = []string{
	`CREATE TABLE IF NOT EXISTS branches (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		address TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id UUID PRIMARY KEY,
		category_id UUID NOT NULL REFERENCES categories(id),
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		brand TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS product_variants (
		id UUID PRIMARY KEY,
		product_id UUID NOT NULL REFERENCES products(id),
		sku TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		unit TEXT NOT NULL,
		price NUMERIC(12,2) NOT NULL CHECK (price > 0),
		is_active BOOLEAN NOT NULL DEFAULT true
	)`,
	`CREATE TABLE IF NOT EXISTS promotions (
		id UUID PRIMARY KEY,
		branch_id UUID REFERENCES branches(id),
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		discount_percent NUMERIC(5,2) NOT NULL CHECK (discount_percent > 0 AND discount_percent <= 100),
		starts_at TIMESTAMPTZ NOT NULL,
		ends_at TIMESTAMPTZ NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT true
	)`,
	`CREATE TABLE IF NOT EXISTS inventory (
		variant_id UUID NOT NULL REFERENCES product_variants(id),
		branch_id UUID NOT NULL REFERENCES branches(id),
		quantity_on_hand INTEGER NOT NULL DEFAULT 0 CHECK (quantity_on_hand >= 0),
		quantity_reserved INTEGER NOT NULL DEFAULT 0 CHECK (quantity_reserved >= 0),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (variant_id, branch_id),
		CHECK (quantity_reserved <= quantity_on_hand)
	)`,
	`CREATE TABLE IF NOT EXISTS customers (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		phone TEXT NOT NULL DEFAULT '',
		loyalty_points INTEGER NOT NULL DEFAULT 0,
		total_spent NUMERIC(14,2) NOT NULL DEFAULT 0,
		total_lifetime_spent NUMERIC(14,2) NOT NULL DEFAULT 0,
		loyalty_tier TEXT NOT NULL DEFAULT 'bronze',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id UUID PRIMARY KEY,
		order_number TEXT NOT NULL UNIQUE,
		branch_id UUID NOT NULL REFERENCES branches(id),
		customer_id UUID REFERENCES customers(id),
		status TEXT NOT NULL DEFAULT 'pending',
		total NUMERIC(14,2) NOT NULL,
		payment_method TEXT NOT NULL,
		payment_reference TEXT NOT NULL DEFAULT '',
		is_guest_order BOOLEAN NOT NULL DEFAULT false,
		estimated_ready_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id UUID PRIMARY KEY,
		order_id UUID NOT NULL REFERENCES orders(id),
		variant_id UUID NOT NULL REFERENCES product_variants(id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price NUMERIC(12,2) NOT NULL,
		line_total NUMERIC(14,2) NOT NULL,
		weight NUMERIC(10,3),
		expiry_date TIMESTAMPTZ,
		batch_number TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS order_counters (
		id TEXT PRIMARY KEY,
		value BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category_id) WHERE is_active`,
	`CREATE INDEX IF NOT EXISTS idx_variants_product ON product_variants(product_id) WHERE is_active`,
	`CREATE INDEX IF NOT EXISTS idx_orders_branch ON orders(branch_id)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id)`,
	`CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id)`,
	`CREATE INDEX IF NOT EXISTS idx_promotions_window ON promotions(starts_at, ends_at) WHERE is_active`,
}

func main() {
	db, err := openDB()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	for i, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			log.Fatalf("❌ Migration statement %d failed: %v", i+1, err)
		}
	}

	log.Printf("✅ Schema migrated (%d statements)", len(schema))
}

func openDB() (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		getEnv("DATABASE_USER", "root"),
		getEnv("DATABASE_PASSWORD", "pass"),
		getEnv("DATABASE_HOST", "localhost"),
		getEnv("DATABASE_PORT", "5432"),
		getEnv("DATABASE_NAME", "agrovet_db"),
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	// Wait for database to be ready
	for i := 0; i < 30; i++ {
		if err := db.Ping(); err == nil {
			return db, nil
		}
		log.Printf("⏳ Waiting for database... (%d/30)", i+1)
		time.Sleep(1 * time.Second)
	}

	db.Close()
	return nil, fmt.Errorf("database not reachable after 30 attempts")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
