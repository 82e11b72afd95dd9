package reports

import (
	"errors"
	"strconv"

	"vending-backend/internal/clock"
	"vending-backend/internal/database"
	"vending-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type SessionResponse struct {
	ID                uint    `json:"id"`
	CustomerID        string  `json:"customer_id"`
	DepositedAmount   float64 `json:"deposited_amount"`
	FinalTotal        float64 `json:"final_total"`
	ReturnedChange    float64 `json:"returned_change"`
	UndispensedChange float64 `json:"undispensed_change"`
	IsCompleted       bool    `json:"is_completed"`
	PurchaseCount     int     `json:"purchase_count"`
	Timestamp         string  `json:"timestamp"`
}

type LineItemResponse struct {
	ID              uint                `json:"id"`
	ProductID       uint                `json:"product_id"`
	Product         string              `json:"product"`
	Quantity        int                 `json:"quantity"`
	TotalPrice      float64             `json:"total_price"`
	TransactionType models.LineItemType `json:"transaction_type"`
	Timestamp       string              `json:"timestamp"`
}

type MovementResponse struct {
	ID           uint                  `json:"id"`
	SessionID    uint                  `json:"session_id"`
	Customer     string                `json:"customer,omitempty"`
	Type         models.MoneyDirection `json:"type"`
	Denomination float64               `json:"denomination"`
	Count        int                   `json:"count"`
	Amount       float64               `json:"amount"`
	Timestamp    string                `json:"timestamp"`
}

type SessionDetailResponse struct {
	SessionResponse
	Items          []LineItemResponse `json:"items"`
	MoneyMovements []MovementResponse `json:"money_movements"`
}

// PurchaseRow is one line item flattened with its session.
type PurchaseRow struct {
	ID              uint                `json:"id"`
	SessionID       *uint               `json:"session_id"`
	Customer        string              `json:"customer"`
	Product         string              `json:"product"`
	Quantity        int                 `json:"quantity"`
	TotalPrice      float64             `json:"total_price"`
	DepositedAmount float64             `json:"deposited_amount"`
	ChangeReturned  float64             `json:"change_returned"`
	TransactionType models.LineItemType `json:"transaction_type"`
	Timestamp       string              `json:"timestamp"`
}

type SummaryResponse struct {
	Sessions          int64   `json:"sessions"`
	Revenue           float64 `json:"revenue"`
	Deposited         float64 `json:"deposited"`
	ChangeReturned    float64 `json:"change_returned"`
	UndispensedChange float64 `json:"undispensed_change"`
	ItemsSold         int64   `json:"items_sold"`
	UnitsRefilled     int64   `json:"units_refilled"`
	Products          int64   `json:"products"`
	OutOfStock        int64   `json:"out_of_stock"`
}

func toSessionResponse(r SessionRow) SessionResponse {
	return SessionResponse{
		ID:                r.ID,
		CustomerID:        r.CustomerID,
		DepositedAmount:   r.DepositedAmount.InexactFloat64(),
		FinalTotal:        r.FinalTotal.InexactFloat64(),
		ReturnedChange:    r.ReturnedChange.InexactFloat64(),
		UndispensedChange: r.UndispensedChange.InexactFloat64(),
		IsCompleted:       r.IsCompleted,
		PurchaseCount:     r.PurchaseCount,
		Timestamp:         r.SessionStart.Format(clock.ReportLayout),
	}
}

func toMovementResponse(m models.MoneyMovement, customer string) MovementResponse {
	return MovementResponse{
		ID:           m.ID,
		SessionID:    m.SessionID,
		Customer:     customer,
		Type:         m.Type,
		Denomination: m.Denomination.InexactFloat64(),
		Count:        m.Count,
		Amount:       m.Amount().InexactFloat64(),
		Timestamp:    m.Timestamp.Format(clock.ReportLayout),
	}
}

// GET /api/admin/sessions?customer=asha
func ListSessionsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rows, err := listSessions(database.DB, c.Query("customer"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not load sessions")
		}

		resp := make([]SessionResponse, 0, len(rows))
		for _, r := range rows {
			resp = append(resp, toSessionResponse(r))
		}
		return c.JSON(resp)
	}
}

// GET /api/admin/sessions/:id
func GetSessionHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseUint(c.Params("id"), 10, 64)
		if err != nil || id == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid session id")
		}

		var s models.PurchaseSession
		err = database.DB.
			Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
			Preload("LineItems.Product").
			Preload("MoneyMovements", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
			First(&s, id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "Session not found")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "Could not load session")
		}

		row := SessionRow{PurchaseSession: s}
		resp := SessionDetailResponse{
			Items:          make([]LineItemResponse, 0, len(s.LineItems)),
			MoneyMovements: make([]MovementResponse, 0, len(s.MoneyMovements)),
		}
		for _, li := range s.LineItems {
			if li.TransactionType == models.LineItemPurchase {
				row.PurchaseCount += li.Quantity
			}
			resp.Items = append(resp.Items, LineItemResponse{
				ID:              li.ID,
				ProductID:       li.ProductID,
				Product:         li.Product.ProductName,
				Quantity:        li.Quantity,
				TotalPrice:      li.TotalPrice.InexactFloat64(),
				TransactionType: li.TransactionType,
				Timestamp:       li.Timestamp.Format(clock.ReportLayout),
			})
		}
		for _, m := range s.MoneyMovements {
			resp.MoneyMovements = append(resp.MoneyMovements, toMovementResponse(m, ""))
		}
		resp.SessionResponse = toSessionResponse(row)

		return c.JSON(resp)
	}
}

// GET /api/admin/purchases?type=purchase|refill
func ListPurchasesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := database.DB.Model(&models.LineItem{}).Preload("Session").Preload("Product")
		if t := c.Query("type"); t != "" {
			if t != string(models.LineItemPurchase) && t != string(models.LineItemRefill) {
				return fiber.NewError(fiber.StatusBadRequest, "type must be purchase or refill")
			}
			dbq = dbq.Where("transaction_type = ?", t)
		}

		var items []models.LineItem
		if err := dbq.Order("timestamp DESC, id DESC").Find(&items).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not load purchases")
		}

		resp := make([]PurchaseRow, 0, len(items))
		for _, li := range items {
			row := PurchaseRow{
				ID:              li.ID,
				SessionID:       li.SessionID,
				Customer:        "Unknown",
				Product:         li.Product.ProductName,
				Quantity:        li.Quantity,
				TotalPrice:      li.TotalPrice.InexactFloat64(),
				TransactionType: li.TransactionType,
				Timestamp:       li.Timestamp.Format(clock.ReportLayout),
			}
			if li.Session != nil {
				row.Customer = li.Session.CustomerID
				row.DepositedAmount = li.Session.DepositedAmount.InexactFloat64()
				row.ChangeReturned = li.Session.ReturnedChange.InexactFloat64()
			}
			resp = append(resp, row)
		}
		return c.JSON(resp)
	}
}

// GET /api/admin/money-movements?type=inserted|change
func ListMoneyMovementsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := database.DB.Model(&models.MoneyMovement{}).Preload("Session")
		if t := c.Query("type"); t != "" {
			if t != string(models.MoneyInserted) && t != string(models.MoneyChange) {
				return fiber.NewError(fiber.StatusBadRequest, "type must be inserted or change")
			}
			dbq = dbq.Where("type = ?", t)
		}

		var movements []models.MoneyMovement
		if err := dbq.Order("timestamp DESC, id DESC").Find(&movements).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not load money movements")
		}

		resp := make([]MovementResponse, 0, len(movements))
		for _, m := range movements {
			resp = append(resp, toMovementResponse(m, m.Session.CustomerID))
		}
		return c.JSON(resp)
	}
}

// GET /api/admin/summary
func SummaryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := summarize(database.DB)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not build summary")
		}
		return c.JSON(SummaryResponse{
			Sessions:          s.Sessions,
			Revenue:           s.Revenue.InexactFloat64(),
			Deposited:         s.Deposited.InexactFloat64(),
			ChangeReturned:    s.ChangeReturned.InexactFloat64(),
			UndispensedChange: s.UndispensedChange.InexactFloat64(),
			ItemsSold:         s.ItemsSold,
			UnitsRefilled:     s.UnitsRefilled,
			Products:          s.Products,
			OutOfStock:        s.OutOfStock,
		})
	}
}
