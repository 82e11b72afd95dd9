// Package kiosk is the terminal front end of a vending machine. It talks to
// the backend over HTTP and checks stock and money locally before submitting.
package kiosk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultTimeout = 5 * time.Second

var ErrCannotConnect = errors.New("cannot connect to vending server")

// APIError is an error response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type Product struct {
	ID                uint    `json:"id"`
	ProductName       string  `json:"product_name"`
	Cost              float64 `json:"cost"`
	AvailableQuantity int     `json:"available_quantity"`
	Category          string  `json:"category"`
	IsAvailable       bool    `json:"is_available"`
}

type Item struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

type PurchaseRequest struct {
	CustomerID string        `json:"customer_id"`
	Items      []Item        `json:"items"`
	Inserted   map[int64]int `json:"inserted"`
}

type ReceiptLine struct {
	ProductID  uint    `json:"product_id"`
	Product    string  `json:"product"`
	Quantity   int     `json:"quantity"`
	TotalPrice float64 `json:"total_price"`
}

type ChangeLine struct {
	Denomination int64 `json:"denomination"`
	Count        int   `json:"count"`
}

type Receipt struct {
	Message           string        `json:"message"`
	SessionID         uint          `json:"session_id"`
	Items             []ReceiptLine `json:"items"`
	TotalCost         float64       `json:"total_cost"`
	DepositedAmount   float64       `json:"deposited_amount"`
	ChangeReturned    float64       `json:"change_returned"`
	ChangeBreakdown   []ChangeLine  `json:"change_breakdown"`
	UndispensedChange float64       `json:"undispensed_change"`
	Timestamp         string        `json:"timestamp"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Client calls the vending backend.
type Client struct {
	http *resty.Client
}

func NewClient(serverAddr string) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(serverAddr, "/")).
		SetTimeout(defaultTimeout).
		SetHeader("Accept", "application/json")
	return &Client{http: rc}
}

// ListProducts returns the available products.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("available", "true").
		SetResult(&products).
		SetError(&errorBody{}).
		Get("/api/products")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return products, nil
}

// Purchase submits a cart with the inserted money.
func (c *Client) Purchase(ctx context.Context, req PurchaseRequest) (*Receipt, error) {
	var receipt Receipt
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&receipt).
		SetError(&errorBody{}).
		Post("/api/purchase")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCannotConnect, err)
	}
	if !resp.IsError() {
		return nil
	}
	msg := resp.Status()
	if body, ok := resp.Error().(*errorBody); ok && body.Error != "" {
		msg = body.Error
	}
	return &APIError{Status: resp.StatusCode(), Message: msg}
}
