package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type LineItemType string

const (
	LineItemPurchase LineItemType = "purchase"
	LineItemRefill   LineItemType = "refill"
)

// LineItem records one product movement. Refill rows carry no price and may
// have no session when created by an operator restock.
type LineItem struct {
	ID              uint             `gorm:"primaryKey"`
	SessionID       *uint            `gorm:"index"`
	Session         *PurchaseSession `gorm:"constraint:OnDelete:CASCADE"`
	ProductID       uint             `gorm:"index;not null"`
	Product         Product          `gorm:"constraint:OnDelete:CASCADE"`
	Quantity        int              `gorm:"not null;default:0"`
	TotalPrice      decimal.Decimal  `gorm:"type:decimal(8,2);not null;default:0"`
	TransactionType LineItemType     `gorm:"size:10;not null;default:purchase;index"`
	Timestamp       time.Time        `gorm:"index;not null"`
}
