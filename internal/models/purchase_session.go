package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseSession is one completed purchase. Everything except IsCompleted is
// fixed at creation.
type PurchaseSession struct {
	ID              uint            `gorm:"primaryKey"`
	CustomerID      string          `gorm:"size:100;not null;index"` // student name
	DepositedAmount decimal.Decimal `gorm:"type:decimal(8,2);not null;default:0"`
	FinalTotal      decimal.Decimal `gorm:"type:decimal(8,2);not null;default:0"`
	ReturnedChange  decimal.Decimal `gorm:"type:decimal(8,2);not null;default:0"`
	// part of ReturnedChange that no denomination could pay out
	UndispensedChange decimal.Decimal `gorm:"type:decimal(8,2);not null;default:0"`
	SessionStart      time.Time       `gorm:"index;not null"`
	IsCompleted       bool            `gorm:"not null;default:false"`

	LineItems      []LineItem      `gorm:"foreignKey:SessionID"`
	MoneyMovements []MoneyMovement `gorm:"foreignKey:SessionID"`
}
