package purchase

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"vending-backend/internal/dbtest"
	"vending-backend/internal/logger"
	"vending-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newPurchaseApp(db *gorm.DB, opts Options) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: logger.ErrorHandler(zap.NewNop())})
	app.Post("/api/purchase", PurchaseHandler(NewService(db, opts, nil)))
	return app
}

func postPurchase(t *testing.T, app *fiber.App, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/purchase", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func TestPurchaseHandlerItemList(t *testing.T) {
	db := dbtest.Open(t)
	chips := dbtest.SeedProduct(t, db, "Chips", "25.00", 10, models.CategorySnacks)
	cola := dbtest.SeedProduct(t, db, "Cola", "30.00", 10, models.CategoryDrinks)
	app := newPurchaseApp(db, Options{})

	status, body := postPurchase(t, app, `{
		"customer_id": "Asha",
		"items": [{"product_id": `+itoa(chips.ID)+`, "quantity": 2}, {"product_id": `+itoa(cola.ID)+`, "quantity": 1}],
		"inserted": {"100": 1}
	}`)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "Purchase successful", body["message"])
	require.EqualValues(t, 80, body["total_cost"])
	require.EqualValues(t, 100, body["deposited_amount"])
	require.EqualValues(t, 20, body["change_returned"])
	require.EqualValues(t, 0, body["undispensed_change"])
	require.Len(t, body["items"], 2)

	breakdown := body["change_breakdown"].([]any)
	require.Len(t, breakdown, 1)
	require.EqualValues(t, 20, breakdown[0].(map[string]any)["denomination"])
	require.EqualValues(t, 1, breakdown[0].(map[string]any)["count"])
}

func TestPurchaseHandlerSingleProductDefaultsToOne(t *testing.T) {
	db := dbtest.Open(t)
	cola := dbtest.SeedProduct(t, db, "Cola", "30.00", 3, models.CategoryDrinks)
	app := newPurchaseApp(db, Options{})

	status, body := postPurchase(t, app, `{"customer_id":"Ravi","product_id":`+itoa(cola.ID)+`,"deposited_amount":50}`)
	require.Equal(t, fiber.StatusOK, status)
	require.EqualValues(t, 30, body["total_cost"])
	require.Equal(t, 2, dbtest.Stock(t, db, cola.ID))
}

func TestPurchaseHandlerErrors(t *testing.T) {
	db := dbtest.Open(t)
	cola := dbtest.SeedProduct(t, db, "Cola", "30.00", 2, models.CategoryDrinks)
	app := newPurchaseApp(db, Options{})
	id := itoa(cola.ID)

	cases := []struct {
		name   string
		body   string
		status int
		check  func(t *testing.T, body map[string]any)
	}{
		{
			name:   "missing customer",
			body:   `{"product_id":` + id + `,"deposited_amount":30}`,
			status: fiber.StatusBadRequest,
			check: func(t *testing.T, body map[string]any) {
				require.Equal(t, "Missing required fields: customer_id", body["error"])
			},
		},
		{
			name:   "empty cart",
			body:   `{"customer_id":"Asha","items":[],"deposited_amount":30}`,
			status: fiber.StatusBadRequest,
			check: func(t *testing.T, body map[string]any) {
				require.Equal(t, "Your cart is empty", body["error"])
			},
		},
		{
			name:   "bad denomination",
			body:   `{"customer_id":"Asha","product_id":` + id + `,"inserted":{"7":1}}`,
			status: fiber.StatusBadRequest,
		},
		{
			name:   "unknown product",
			body:   `{"customer_id":"Asha","product_id":4040,"deposited_amount":30}`,
			status: fiber.StatusNotFound,
			check: func(t *testing.T, body map[string]any) {
				require.Equal(t, "Product not found", body["error"])
			},
		},
		{
			name:   "not enough stock",
			body:   `{"customer_id":"Asha","product_id":` + id + `,"quantity":3,"deposited_amount":200}`,
			status: fiber.StatusBadRequest,
			check: func(t *testing.T, body map[string]any) {
				require.EqualValues(t, 2, body["available"])
				require.Contains(t, body["error"], "Insufficient stock for Cola")
			},
		},
		{
			name:   "not enough money",
			body:   `{"customer_id":"Asha","product_id":` + id + `,"quantity":2,"inserted":{"50":1}}`,
			status: fiber.StatusBadRequest,
			check: func(t *testing.T, body map[string]any) {
				require.Equal(t, "Insufficient funds. Need Rs 10.00 more.", body["error"])
				require.EqualValues(t, 10, body["shortfall"])
			},
		},
		{
			name:   "malformed json",
			body:   `{"customer_id":`,
			status: fiber.StatusBadRequest,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := postPurchase(t, app, tc.body)
			require.Equal(t, tc.status, status)
			require.NotEmpty(t, body["error"])
			if tc.check != nil {
				tc.check(t, body)
			}
		})
	}

	require.Equal(t, 2, dbtest.Stock(t, db, cola.ID))
}

func itoa(id uint) string {
	b, _ := json.Marshal(id)
	return string(b)
}
