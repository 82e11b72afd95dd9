package purchase

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrMissingCustomer = errors.New("customer name is required")
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidInput    = errors.New("invalid purchase request")
)

type ProductNotFoundError struct {
	ProductID uint
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

type ProductUnavailableError struct {
	ProductID uint
	Name      string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("%s is not available", e.Name)
}

type InsufficientStockError struct {
	ProductID uint
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: %d available, %d requested", e.Name, e.Available, e.Requested)
}

type InsufficientFundsError struct {
	Owed      decimal.Decimal
	Deposited decimal.Decimal
}

// Shortfall is what the customer still has to insert.
func (e *InsufficientFundsError) Shortfall() decimal.Decimal {
	return e.Owed.Sub(e.Deposited)
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds, need Rs %s more", e.Shortfall().StringFixed(2))
}
