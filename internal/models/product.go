package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProductCategory string

const (
	CategorySnacks ProductCategory = "snacks" // cakes & snacks
	CategoryDrinks ProductCategory = "drinks" // soft drinks
)

// ProductCapacity is the stock level a product is refilled to.
const ProductCapacity = 30

func (c ProductCategory) Valid() bool {
	return c == CategorySnacks || c == CategoryDrinks
}

type Product struct {
	ID                uint            `gorm:"primaryKey"`
	ProductName       string          `gorm:"size:120;not null"`
	Cost              decimal.Decimal `gorm:"type:decimal(6,2);not null"`
	AvailableQuantity int             `gorm:"not null;check:available_quantity >= 0"`
	Category          ProductCategory `gorm:"size:20;not null;default:snacks;index"`
	IsAvailable       bool            `gorm:"not null"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
