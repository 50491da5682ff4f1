// Package testutil holds the SQLite harness shared by package tests.
//
// Tables are created with raw SQLite DDL instead of AutoMigrate because the
// GORM model tags carry PostgreSQL defaults such as gen_random_uuid().
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"biscuit-backend/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbCounter atomic.Int64

var schema = []string{
	`CREATE TABLE IF NOT EXISTS "users" (
		"id" TEXT PRIMARY KEY,
		"email" TEXT NOT NULL UNIQUE,
		"name" TEXT,
		"role" TEXT DEFAULT 'customer',
		"phone" TEXT,
		"created_at" DATETIME,
		"updated_at" DATETIME
	)`,

	`CREATE TABLE IF NOT EXISTS "categories" (
		"id" TEXT PRIMARY KEY,
		"name" TEXT NOT NULL UNIQUE,
		"slug" TEXT NOT NULL UNIQUE,
		"created_at" DATETIME,
		"updated_at" DATETIME
	)`,

	`CREATE TABLE IF NOT EXISTS "products" (
		"id" TEXT PRIMARY KEY,
		"name" TEXT NOT NULL,
		"description" TEXT,
		"price" TEXT NOT NULL,
		"stock" INTEGER DEFAULT 0,
		"category_id" TEXT,
		"image_url" TEXT,
		"available" INTEGER DEFAULT 1,
		"created_at" DATETIME,
		"updated_at" DATETIME
	)`,

	`CREATE TABLE IF NOT EXISTS "cart_items" (
		"id" TEXT PRIMARY KEY,
		"user_id" TEXT NOT NULL,
		"product_id" TEXT NOT NULL,
		"quantity" INTEGER NOT NULL DEFAULT 1,
		"price" TEXT NOT NULL,
		"created_at" DATETIME,
		"updated_at" DATETIME
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_cart_user_product ON "cart_items"("user_id", "product_id")`,

	`CREATE TABLE IF NOT EXISTS "wishlist_items" (
		"id" TEXT PRIMARY KEY,
		"user_id" TEXT NOT NULL,
		"product_id" TEXT NOT NULL,
		"created_at" DATETIME
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_wishlist_user_product ON "wishlist_items"("user_id", "product_id")`,

	`CREATE TABLE IF NOT EXISTS "orders" (
		"id" TEXT PRIMARY KEY,
		"user_id" TEXT NOT NULL,
		"total_price" TEXT NOT NULL,
		"status" TEXT DEFAULT 'pending',
		"payment_method" TEXT NOT NULL,
		"customer_phone" TEXT,
		"transaction_reference" TEXT,
		"transaction_id" TEXT,
		"created_at" DATETIME,
		"updated_at" DATETIME
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_transaction_reference ON "orders"("transaction_reference")`,

	`CREATE TABLE IF NOT EXISTS "order_items" (
		"id" TEXT PRIMARY KEY,
		"order_id" TEXT NOT NULL,
		"product_id" TEXT NOT NULL,
		"product_name" TEXT,
		"quantity" INTEGER NOT NULL,
		"price" TEXT NOT NULL,
		"created_at" DATETIME,
		"updated_at" DATETIME,
		CONSTRAINT fk_orders_items FOREIGN KEY ("order_id") REFERENCES "orders"("id") ON DELETE CASCADE
	)`,
}

// OpenDB returns an isolated in-memory database with the full schema.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", dbCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	// A single connection keeps every goroutine on the same in-memory database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("failed to create test schema: %v", err)
		}
	}

	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func SeedUser(t testing.TB, db *gorm.DB, email string) models.User {
	t.Helper()
	user := models.User{
		ID:    uuid.New(),
		Email: email,
		Name:  "Test User",
		Phone: "0341234567",
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return user
}

func SeedProduct(t testing.TB, db *gorm.DB, name, price string, stock int) models.Product {
	t.Helper()
	product := models.Product{
		ID:        uuid.New(),
		Name:      name,
		Price:     decimal.RequireFromString(price),
		Stock:     stock,
		Available: true,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}
	return product
}

func SeedOrder(t testing.TB, db *gorm.DB, userID uuid.UUID, method, total string) models.Order {
	t.Helper()
	order := models.Order{
		ID:            uuid.New(),
		UserID:        userID,
		TotalPrice:    decimal.RequireFromString(total),
		Status:        models.OrderStatusPending,
		PaymentMethod: method,
		CustomerPhone: "0341234567",
	}
	if err := db.Omit("User", "Items").Create(&order).Error; err != nil {
		t.Fatalf("failed to seed order: %v", err)
	}
	return order
}

// StringPtr is a convenience for nullable string columns.
func StringPtr(s string) *string {
	return &s
}
