// Package reports serves the operator's read-only views of sales, money and
// stock.
package reports

import (
	"strings"

	"vending-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SessionRow is a purchase session with the number of products bought in it.
type SessionRow struct {
	models.PurchaseSession
	PurchaseCount int
}

func listSessions(db *gorm.DB, customer string) ([]SessionRow, error) {
	dbq := db.Model(&models.PurchaseSession{})
	if customer = strings.TrimSpace(customer); customer != "" {
		dbq = dbq.Where("LOWER(customer_id) LIKE ?", "%"+strings.ToLower(customer)+"%")
	}

	var sessions []models.PurchaseSession
	if err := dbq.Order("session_start DESC, id DESC").Find(&sessions).Error; err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return []SessionRow{}, nil
	}

	ids := make([]uint, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}

	var counts []struct {
		SessionID uint
		Items     int
	}
	if err := db.Model(&models.LineItem{}).
		Select("session_id, COALESCE(SUM(quantity), 0) AS items").
		Where("session_id IN ? AND transaction_type = ?", ids, models.LineItemPurchase).
		Group("session_id").
		Scan(&counts).Error; err != nil {
		return nil, err
	}
	bySession := make(map[uint]int, len(counts))
	for _, c := range counts {
		bySession[c.SessionID] = c.Items
	}

	rows := make([]SessionRow, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, SessionRow{PurchaseSession: s, PurchaseCount: bySession[s.ID]})
	}
	return rows, nil
}

// Summary is computed on every request; nothing is cached.
type Summary struct {
	Sessions          int64
	Revenue           decimal.Decimal
	Deposited         decimal.Decimal
	ChangeReturned    decimal.Decimal
	UndispensedChange decimal.Decimal
	ItemsSold         int64
	UnitsRefilled     int64
	Products          int64
	OutOfStock        int64
}

func summarize(db *gorm.DB) (*Summary, error) {
	var totals struct {
		Sessions    int64
		Revenue     decimal.Decimal
		Deposited   decimal.Decimal
		Returned    decimal.Decimal
		Undispensed decimal.Decimal
	}
	if err := db.Model(&models.PurchaseSession{}).
		Select(`COUNT(*) AS sessions,
			COALESCE(SUM(final_total), 0) AS revenue,
			COALESCE(SUM(deposited_amount), 0) AS deposited,
			COALESCE(SUM(returned_change), 0) AS returned,
			COALESCE(SUM(undispensed_change), 0) AS undispensed`).
		Where("is_completed = ?", true).
		Scan(&totals).Error; err != nil {
		return nil, err
	}

	var units []struct {
		TransactionType models.LineItemType
		Units           int64
	}
	if err := db.Model(&models.LineItem{}).
		Select("transaction_type, COALESCE(SUM(quantity), 0) AS units").
		Group("transaction_type").
		Scan(&units).Error; err != nil {
		return nil, err
	}

	s := &Summary{
		Sessions:          totals.Sessions,
		Revenue:           totals.Revenue,
		Deposited:         totals.Deposited,
		ChangeReturned:    totals.Returned,
		UndispensedChange: totals.Undispensed,
	}
	for _, u := range units {
		switch u.TransactionType {
		case models.LineItemPurchase:
			s.ItemsSold = u.Units
		case models.LineItemRefill:
			s.UnitsRefilled = u.Units
		}
	}

	if err := db.Model(&models.Product{}).Count(&s.Products).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Product{}).Where("available_quantity = 0").Count(&s.OutOfStock).Error; err != nil {
		return nil, err
	}
	return s, nil
}
