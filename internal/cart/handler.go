package cart

import (
	"errors"
	"fmt"

	"vending-backend/internal/clock"
	"vending-backend/internal/money"
	"vending-backend/internal/purchase"
	"vending-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CreateCartRequest struct {
	CustomerID string                 `json:"customer_id"`
	Items      []purchase.ItemRequest `json:"items" validate:"dive"`
}

type CheckoutRequest struct {
	Inserted        money.Inserted   `json:"inserted"`
	DepositedAmount *decimal.Decimal `json:"deposited_amount"`
}

type LineResponse struct {
	ProductID   uint    `json:"product_id"`
	ProductName string  `json:"product_name"`
	UnitPrice   float64 `json:"unit_price"`
	Quantity    int     `json:"quantity"`
	Total       float64 `json:"total"`
}

type CartResponse struct {
	Token                 string         `json:"token"`
	CustomerID            string         `json:"customer_id"`
	Lines                 []LineResponse `json:"lines"`
	Total                 float64        `json:"total"`
	AcceptedDenominations []int64        `json:"accepted_denominations"`
	ExpiresAt             string         `json:"expires_at"`
}

func toResponse(c *Cart) CartResponse {
	resp := CartResponse{
		Token:                 c.Token,
		CustomerID:            c.CustomerID,
		Lines:                 make([]LineResponse, 0, len(c.Lines)),
		Total:                 c.Total.InexactFloat64(),
		AcceptedDenominations: money.Denominations,
		ExpiresAt:             c.ExpiresAt.Format(clock.ReportLayout),
	}
	for _, l := range c.Lines {
		resp.Lines = append(resp.Lines, LineResponse{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			UnitPrice:   l.UnitPrice.InexactFloat64(),
			Quantity:    l.Quantity,
			Total:       l.Total.InexactFloat64(),
		})
	}
	return resp
}

func notFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Cart not found or expired")
	}
	return err
}

// POST /api/cart
func CreateCartHandler(store *Store, svc *purchase.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateCartRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if err := validation.Struct(body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		lines := make([]purchase.Line, 0, len(body.Items))
		for _, it := range body.Items {
			lines = append(lines, purchase.Line{ProductID: it.ProductID, Quantity: it.Quantity})
		}

		q, err := svc.Quote(c.UserContext(), body.CustomerID, lines)
		if err != nil {
			return purchase.WriteError(c, err)
		}

		cart := &Cart{CustomerID: q.Customer, Total: q.Total}
		for _, l := range q.Lines {
			cart.Lines = append(cart.Lines, Line{
				ProductID:   l.Product.ID,
				ProductName: l.Product.ProductName,
				UnitPrice:   l.Product.Cost,
				Quantity:    l.Quantity,
				Total:       l.Total,
			})
		}
		if err := store.Save(c.UserContext(), cart); err != nil {
			return fmt.Errorf("save cart: %w", err)
		}

		return c.Status(fiber.StatusCreated).JSON(toResponse(cart))
	}
}

// GET /api/cart/:token
func GetCartHandler(store *Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cart, err := store.Get(c.UserContext(), c.Params("token"))
		if err != nil {
			return notFound(err)
		}
		return c.JSON(toResponse(cart))
	}
}

// DELETE /api/cart/:token
func DeleteCartHandler(store *Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := store.Delete(c.UserContext(), c.Params("token")); err != nil {
			return notFound(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// POST /api/cart/:token/checkout
//
// The cart is claimed for the length of the purchase, so a concurrent
// checkout of the same token sees 404. After a failure the cart is put back
// and the customer can retry with more money.
func CheckoutHandler(store *Store, svc *purchase.Service, zaplog *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CheckoutRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		token := c.Params("token")
		cart, ttl, err := store.Claim(c.UserContext(), token)
		if err != nil {
			return notFound(err)
		}

		cmd := purchase.Command{
			Customer: cart.CustomerID,
			Deposit:  body.DepositedAmount,
			Inserted: body.Inserted,
		}
		for _, l := range cart.Lines {
			cmd.Lines = append(cmd.Lines, purchase.Line{ProductID: l.ProductID, Quantity: l.Quantity})
		}

		receipt, err := svc.Execute(c.UserContext(), cmd)
		if err != nil {
			if rerr := store.Restore(c.UserContext(), cart, ttl); rerr != nil {
				zaplog.Warn("cart not restored after failed checkout", zap.String("token", token), zap.Error(rerr))
			}
			return purchase.WriteError(c, err)
		}
		return c.JSON(purchase.NewReceiptResponse(receipt))
	}
}
