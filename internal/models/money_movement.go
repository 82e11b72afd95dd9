package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type MoneyDirection string

const (
	MoneyInserted MoneyDirection = "inserted"
	MoneyChange   MoneyDirection = "change" // returned as change
)

type MoneyMovement struct {
	ID           uint            `gorm:"primaryKey"`
	SessionID    uint            `gorm:"index;not null"`
	Session      PurchaseSession `gorm:"constraint:OnDelete:CASCADE"`
	Denomination decimal.Decimal `gorm:"type:decimal(8,2);not null"`
	Count        int             `gorm:"not null"`
	Type         MoneyDirection  `gorm:"size:10;not null;index"`
	Timestamp    time.Time       `gorm:"index;not null"`
}

// Amount is denomination × count.
func (m MoneyMovement) Amount() decimal.Decimal {
	return m.Denomination.Mul(decimal.NewFromInt(int64(m.Count)))
}
