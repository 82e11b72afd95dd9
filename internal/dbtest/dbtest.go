// Package dbtest opens throwaway sqlite databases for package tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"vending-backend/internal/database"
	"vending-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a migrated sqlite database and installs it as database.DB for
// the duration of the test.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "vending.db") + "?_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite pool: %v", err)
	}
	// sqlite allows one writer; a single connection keeps transactions serial
	sqlDB.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	prev := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = prev
		sqlDB.Close()
	})
	return db
}

// SeedProduct inserts an available product.
func SeedProduct(t testing.TB, db *gorm.DB, name, cost string, stock int, category models.ProductCategory) models.Product {
	t.Helper()

	p := models.Product{
		ProductName:       name,
		Cost:              decimal.RequireFromString(cost),
		AvailableQuantity: stock,
		Category:          category,
		IsAvailable:       true,
	}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("seed product %s: %v", name, err)
	}
	return p
}

// Stock reloads the current stock of a product.
func Stock(t testing.TB, db *gorm.DB, id uint) int {
	t.Helper()

	var p models.Product
	if err := db.First(&p, id).Error; err != nil {
		t.Fatalf("reload product %d: %v", id, err)
	}
	return p.AvailableQuantity
}
