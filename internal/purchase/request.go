package purchase

import (
	"fmt"

	"vending-backend/internal/money"
	"vending-backend/internal/validation"

	"github.com/shopspring/decimal"
)

type ItemRequest struct {
	ProductID uint `json:"product_id" validate:"required"`
	Quantity  int  `json:"quantity" validate:"min=0"`
}

// PurchaseRequest is the body of POST /api/purchase. Items may be sent as a
// list or as a single product_id/quantity pair; money either as a flat
// deposited_amount or as inserted counts keyed by denomination.
type PurchaseRequest struct {
	CustomerID      string           `json:"customer_id"`
	Items           []ItemRequest    `json:"items" validate:"dive"`
	ProductID       uint             `json:"product_id"`
	Quantity        *int             `json:"quantity" validate:"omitempty,min=0"`
	DepositedAmount *decimal.Decimal `json:"deposited_amount"`
	Inserted        money.Inserted   `json:"inserted"`
}

// ToCommand checks the request shape and converts it to a Command.
func (r PurchaseRequest) ToCommand() (Command, error) {
	if err := validation.Struct(r); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	lines := make([]Line, 0, len(r.Items)+1)
	for _, it := range r.Items {
		lines = append(lines, Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	if len(r.Items) == 0 && r.ProductID != 0 {
		qty := 1
		if r.Quantity != nil {
			qty = *r.Quantity
		}
		lines = append(lines, Line{ProductID: r.ProductID, Quantity: qty})
	}

	return Command{
		Customer: r.CustomerID,
		Lines:    lines,
		Deposit:  r.DepositedAmount,
		Inserted: r.Inserted,
	}, nil
}
