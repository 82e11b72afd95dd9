package purchase

import (
	"errors"
	"fmt"

	"vending-backend/internal/clock"
	"vending-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type ReceiptLine struct {
	ProductID  uint    `json:"product_id"`
	Product    string  `json:"product"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	TotalPrice float64 `json:"total_price"`
}

type ChangeLine struct {
	Denomination int64 `json:"denomination"`
	Count        int   `json:"count"`
}

type ReceiptResponse struct {
	Message           string        `json:"message"`
	SessionID         uint          `json:"session_id"`
	CustomerID        string        `json:"customer_id"`
	Items             []ReceiptLine `json:"items"`
	Refilled          []ReceiptLine `json:"refilled,omitempty"`
	TotalCost         float64       `json:"total_cost"`
	DepositedAmount   float64       `json:"deposited_amount"`
	ChangeReturned    float64       `json:"change_returned"`
	ChangeBreakdown   []ChangeLine  `json:"change_breakdown"`
	UndispensedChange float64       `json:"undispensed_change"`
	Timestamp         string        `json:"timestamp"`
}

// NewReceiptResponse renders a receipt for the client.
func NewReceiptResponse(r *Receipt) ReceiptResponse {
	names := make(map[uint]models.Product, len(r.Lines))
	for _, l := range r.Lines {
		names[l.Product.ID] = l.Product
	}

	resp := ReceiptResponse{
		Message:           "Purchase successful",
		SessionID:         r.Session.ID,
		CustomerID:        r.Session.CustomerID,
		Items:             make([]ReceiptLine, 0, len(r.Purchases)),
		TotalCost:         r.Session.FinalTotal.InexactFloat64(),
		DepositedAmount:   r.Session.DepositedAmount.InexactFloat64(),
		ChangeReturned:    r.Session.ReturnedChange.InexactFloat64(),
		ChangeBreakdown:   make([]ChangeLine, 0, len(r.Change)),
		UndispensedChange: r.Session.UndispensedChange.InexactFloat64(),
		Timestamp:         r.Session.SessionStart.Format(clock.ReportLayout),
	}
	for _, it := range r.Purchases {
		p := names[it.ProductID]
		resp.Items = append(resp.Items, ReceiptLine{
			ProductID:  it.ProductID,
			Product:    p.ProductName,
			Quantity:   it.Quantity,
			UnitPrice:  p.Cost.InexactFloat64(),
			TotalPrice: it.TotalPrice.InexactFloat64(),
		})
	}
	for _, it := range r.Refills {
		resp.Refilled = append(resp.Refilled, ReceiptLine{
			ProductID: it.ProductID,
			Product:   names[it.ProductID].ProductName,
			Quantity:  it.Quantity,
		})
	}
	for _, d := range r.Breakdown.Denominations() {
		resp.ChangeBreakdown = append(resp.ChangeBreakdown, ChangeLine{Denomination: d, Count: r.Breakdown.Counts[d]})
	}
	return resp
}

// WriteError turns a purchase error into the HTTP response. Errors it does not
// know are returned unchanged for the app error handler.
func WriteError(c *fiber.Ctx, err error) error {
	var (
		notFound    *ProductNotFoundError
		unavailable *ProductUnavailableError
		stock       *InsufficientStockError
		funds       *InsufficientFundsError
	)
	switch {
	case errors.Is(err, ErrMissingCustomer):
		return fiber.NewError(fiber.StatusBadRequest, "Missing required fields: customer_id")
	case errors.Is(err, ErrEmptyCart):
		return fiber.NewError(fiber.StatusBadRequest, "Your cart is empty")
	case errors.Is(err, ErrInvalidInput):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.As(err, &notFound):
		return fiber.NewError(fiber.StatusNotFound, "Product not found")
	case errors.As(err, &unavailable):
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("%s is not available", unavailable.Name))
	case errors.As(err, &stock):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":      fmt.Sprintf("Insufficient stock for %s. Available: %d", stock.Name, stock.Available),
			"product_id": stock.ProductID,
			"available":  stock.Available,
		})
	case errors.As(err, &funds):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":     fmt.Sprintf("Insufficient funds. Need Rs %s more.", funds.Shortfall().StringFixed(2)),
			"shortfall": funds.Shortfall().InexactFloat64(),
			"total":     funds.Owed.InexactFloat64(),
			"deposited": funds.Deposited.InexactFloat64(),
		})
	}
	return err
}

// POST /api/purchase
func PurchaseHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body PurchaseRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		cmd, err := body.ToCommand()
		if err != nil {
			return WriteError(c, err)
		}

		receipt, err := svc.Execute(c.UserContext(), cmd)
		if err != nil {
			return WriteError(c, err)
		}

		return c.JSON(NewReceiptResponse(receipt))
	}
}
