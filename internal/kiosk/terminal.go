package kiosk

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"vending-backend/internal/money"

	"github.com/shopspring/decimal"
)

// API is the part of the backend the terminal uses.
type API interface {
	ListProducts(ctx context.Context) ([]Product, error)
	Purchase(ctx context.Context, req PurchaseRequest) (*Receipt, error)
}

// Terminal runs the customer dialogue on a line-oriented console.
type Terminal struct {
	api      API
	in       *bufio.Scanner
	out      io.Writer
	products []Product
}

func NewTerminal(api API, in io.Reader, out io.Writer) *Terminal {
	return &Terminal{api: api, in: bufio.NewScanner(in), out: out}
}

// errQuit ends the dialogue when input runs out.
var errQuit = errors.New("quit")

// Run asks for the customer's name and then sells until the customer stops
// or input ends. Only a failure to reach the server is returned.
func (t *Terminal) Run(ctx context.Context) error {
	name, err := t.askName()
	if err != nil {
		return ignoreQuit(err)
	}
	t.printf("Welcome, %s!\n", name)

	if err := t.refresh(ctx); err != nil {
		return err
	}

	for {
		if err := t.sell(ctx, name); err != nil {
			return ignoreQuit(err)
		}
		again, err := t.ask("Another purchase? [y/N]: ")
		if err != nil {
			return ignoreQuit(err)
		}
		if !strings.EqualFold(again, "y") && !strings.EqualFold(again, "yes") {
			t.printf("Goodbye!\n")
			return nil
		}
	}
}

func ignoreQuit(err error) error {
	if errors.Is(err, errQuit) {
		return nil
	}
	return err
}

func (t *Terminal) askName() (string, error) {
	for {
		name, err := t.ask("Enter your name: ")
		if err != nil {
			return "", err
		}
		if name != "" {
			return name, nil
		}
		t.printf("A name is required.\n")
	}
}

func (t *Terminal) refresh(ctx context.Context) error {
	products, err := t.api.ListProducts(ctx)
	if err != nil {
		return err
	}
	t.products = products
	return nil
}

// sell runs one purchase attempt. Rejections are reported to the customer and
// are not errors.
func (t *Terminal) sell(ctx context.Context, name string) error {
	t.printProducts()

	req := PurchaseRequest{CustomerID: name, Inserted: map[int64]int{}}
	total := decimal.Zero
	for _, p := range t.products {
		if !p.IsAvailable || p.AvailableQuantity == 0 {
			continue
		}
		qty, err := t.askCount(fmt.Sprintf("Quantity of %s [0]: ", p.ProductName))
		if err != nil {
			return err
		}
		if qty == 0 {
			continue
		}
		if qty > p.AvailableQuantity {
			t.printf("Not enough stock for %s. Available: %d\n", p.ProductName, p.AvailableQuantity)
			return nil
		}
		req.Items = append(req.Items, Item{ProductID: p.ID, Quantity: qty})
		total = total.Add(decimal.NewFromFloat(p.Cost).Mul(decimal.NewFromInt(int64(qty))))
	}
	if len(req.Items) == 0 {
		t.printf("No items selected.\n")
		return nil
	}
	t.printf("Total cost: Rs %s\n", total.StringFixed(2))

	t.printf("Insert money:\n")
	for _, d := range money.Denominations {
		n, err := t.askCount(fmt.Sprintf("  Rs %d x [0]: ", d))
		if err != nil {
			return err
		}
		if n > 0 {
			req.Inserted[d] = n
		}
	}
	inserted := money.SumInserted(req.Inserted)
	if inserted.LessThan(total) {
		t.printf("Insufficient funds! Insert Rs %s more.\n", total.Sub(inserted).StringFixed(2))
		return nil
	}

	receipt, err := t.api.Purchase(ctx, req)
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			return err
		}
		t.printf("Error: %s\n", apiErr.Message)
		return t.refresh(ctx)
	}

	t.printReceipt(receipt, inserted)
	return t.refresh(ctx)
}

func (t *Terminal) printProducts() {
	t.printf("\n%-4s %-24s %10s %6s\n", "ID", "Product", "Price", "Stock")
	for _, p := range t.products {
		stock := strconv.Itoa(p.AvailableQuantity)
		if !p.IsAvailable || p.AvailableQuantity == 0 {
			stock = "sold out"
		}
		t.printf("%-4d %-24s %10s %6s\n", p.ID, p.ProductName, "Rs "+strconv.FormatFloat(p.Cost, 'f', 2, 64), stock)
	}
}

func (t *Terminal) printReceipt(r *Receipt, inserted decimal.Decimal) {
	t.printf("\nPurchase successful!\n")
	for _, it := range r.Items {
		t.printf("  %s x %d  Rs %.2f\n", it.Product, it.Quantity, it.TotalPrice)
	}
	t.printf("Total: Rs %.2f\n", r.TotalCost)
	t.printf("Money inserted: Rs %s\n", inserted.StringFixed(2))
	t.printf("Change returned: Rs %.2f\n", r.ChangeReturned)
	for _, c := range r.ChangeBreakdown {
		t.printf("  Rs %d x %d\n", c.Denomination, c.Count)
	}
	if r.UndispensedChange > 0 {
		t.printf("Not dispensed: Rs %.2f\n", r.UndispensedChange)
	}
}

func (t *Terminal) ask(prompt string) (string, error) {
	t.printf("%s", prompt)
	if !t.in.Scan() {
		if err := t.in.Err(); err != nil {
			return "", err
		}
		return "", errQuit
	}
	return strings.TrimSpace(t.in.Text()), nil
}

// askCount reads a non-negative whole number; blank means zero.
func (t *Terminal) askCount(prompt string) (int, error) {
	for {
		s, err := t.ask(prompt)
		if err != nil {
			return 0, err
		}
		if s == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(s)
		if err == nil && n >= 0 {
			return n, nil
		}
		t.printf("Please enter a whole number of 0 or more.\n")
	}
}

func (t *Terminal) printf(format string, args ...any) {
	fmt.Fprintf(t.out, format, args...)
}
