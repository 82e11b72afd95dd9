package purchase

import (
	"fmt"
	"strings"

	"vending-backend/internal/money"

	"github.com/shopspring/decimal"
)

// Line is one product and quantity of a cart.
type Line struct {
	ProductID uint
	Quantity  int
}

// Command is a checked purchase ready for Service.Execute. Exactly one of
// Deposit and Inserted carries the customer's money.
type Command struct {
	Customer string
	Lines    []Line
	Deposit  *decimal.Decimal
	Inserted money.Inserted
}

// Funds is the money the customer put in.
func (c Command) Funds() decimal.Decimal {
	if c.Inserted != nil {
		return c.Inserted.Total()
	}
	if c.Deposit != nil {
		return *c.Deposit
	}
	return decimal.Zero
}

func (c *Command) normalize() error {
	c.Customer = strings.TrimSpace(c.Customer)
	if c.Customer == "" {
		return ErrMissingCustomer
	}

	lines, err := mergeLines(c.Lines)
	if err != nil {
		return err
	}
	c.Lines = lines

	if c.Inserted != nil && c.Deposit != nil {
		return fmt.Errorf("%w: send either deposited_amount or inserted, not both", ErrInvalidInput)
	}
	if c.Inserted != nil {
		if err := c.Inserted.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	if c.Deposit != nil {
		switch {
		case c.Deposit.IsNegative():
			return fmt.Errorf("%w: deposited_amount cannot be negative", ErrInvalidInput)
		case !c.Deposit.Equal(c.Deposit.Round(2)):
			return fmt.Errorf("%w: deposited_amount has more than 2 decimal places", ErrInvalidInput)
		case c.Deposit.GreaterThan(money.MaxAmount):
			return fmt.Errorf("%w: deposited_amount cannot exceed %s", ErrInvalidInput, money.MaxAmount.StringFixed(2))
		}
	}
	return nil
}

// mergeLines drops zero quantities and folds repeated products into one line,
// keeping first-seen order.
func mergeLines(in []Line) ([]Line, error) {
	out := make([]Line, 0, len(in))
	index := make(map[uint]int, len(in))
	for _, l := range in {
		if l.Quantity < 0 {
			return nil, fmt.Errorf("%w: quantity cannot be negative", ErrInvalidInput)
		}
		if l.Quantity == 0 {
			continue
		}
		if l.ProductID == 0 {
			return nil, fmt.Errorf("%w: product_id is required", ErrInvalidInput)
		}
		if i, ok := index[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(out)
		out = append(out, l)
	}
	if len(out) == 0 {
		return nil, ErrEmptyCart
	}
	return out, nil
}
