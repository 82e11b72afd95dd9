package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"vending-backend/internal/dbtest"
	"vending-backend/internal/logger"
	"vending-backend/internal/models"
	"vending-backend/internal/purchase"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client, 15*time.Minute), mr
}

func TestStoreRoundTripAndExpiry(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	c := &Cart{
		CustomerID: "Asha",
		Lines: []Line{{
			ProductID:   1,
			ProductName: "Chips",
			UnitPrice:   decimal.RequireFromString("25"),
			Quantity:    2,
			Total:       decimal.RequireFromString("50"),
		}},
		Total: decimal.RequireFromString("50"),
	}
	require.NoError(t, store.Save(ctx, c))
	require.NotEmpty(t, c.Token)
	require.True(t, mr.Exists("vending:cart:"+c.Token))
	require.Equal(t, 15*time.Minute, mr.TTL("vending:cart:"+c.Token))

	got, err := store.Get(ctx, c.Token)
	require.NoError(t, err)
	require.Equal(t, "Asha", got.CustomerID)
	require.True(t, got.Total.Equal(c.Total))
	require.Len(t, got.Lines, 1)

	mr.FastForward(16 * time.Minute)
	_, err = store.Get(ctx, c.Token)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreUnknownTokens(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "not-a-token")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, "0b8e6a52-3f62-4d0e-9a43-1f0c0b8f6a11")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, store.Delete(ctx, "0b8e6a52-3f62-4d0e-9a43-1f0c0b8f6a11"), ErrNotFound)
}

func TestStoreClaimAndRestore(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	c := &Cart{CustomerID: "Asha", Total: decimal.RequireFromString("30")}
	require.NoError(t, store.Save(ctx, c))
	mr.FastForward(5 * time.Minute)

	claimed, ttl, err := store.Claim(ctx, c.Token)
	require.NoError(t, err)
	require.Equal(t, "Asha", claimed.CustomerID)
	require.Equal(t, 10*time.Minute, ttl)
	require.False(t, mr.Exists("vending:cart:"+c.Token))

	_, _, err = store.Claim(ctx, c.Token)
	require.ErrorIs(t, err, ErrNotFound)
	_, _, err = store.Claim(ctx, "not-a-token")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Restore(ctx, claimed, ttl))
	require.Equal(t, 10*time.Minute, mr.TTL("vending:cart:"+c.Token))
	got, err := store.Get(ctx, c.Token)
	require.NoError(t, err)
	require.True(t, got.Total.Equal(c.Total))
}

type cartApp struct {
	app   *fiber.App
	store *Store
	mr    *miniredis.Miniredis
}

func newCartApp(t *testing.T, db *gorm.DB) cartApp {
	t.Helper()
	store, mr := newStore(t)
	svc := purchase.NewService(db, purchase.Options{}, nil)

	app := fiber.New(fiber.Config{ErrorHandler: logger.ErrorHandler(zap.NewNop())})
	app.Post("/api/cart", CreateCartHandler(store, svc))
	app.Get("/api/cart/:token", GetCartHandler(store))
	app.Delete("/api/cart/:token", DeleteCartHandler(store))
	app.Post("/api/cart/:token/checkout", CheckoutHandler(store, svc, zap.NewNop()))
	return cartApp{app: app, store: store, mr: mr}
}

func (a cartApp) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestCartCheckoutClearsCart(t *testing.T) {
	db := dbtest.Open(t)
	chips := dbtest.SeedProduct(t, db, "Chips", "25.00", 10, models.CategorySnacks)
	cola := dbtest.SeedProduct(t, db, "Cola", "30.00", 10, models.CategoryDrinks)
	a := newCartApp(t, db)

	status, body := a.do(t, "POST", "/api/cart", fmt.Sprintf(
		`{"customer_id":"Asha","items":[{"product_id":%d,"quantity":2},{"product_id":%d,"quantity":0},{"product_id":%d,"quantity":1}]}`,
		chips.ID, cola.ID, chips.ID))
	require.Equal(t, fiber.StatusCreated, status)
	require.EqualValues(t, 75, body["total"])
	require.Len(t, body["lines"], 1)
	require.Len(t, body["accepted_denominations"], 7)
	token := body["token"].(string)

	status, body = a.do(t, "GET", "/api/cart/"+token, "")
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "Asha", body["customer_id"])

	status, body = a.do(t, "POST", "/api/cart/"+token+"/checkout", `{"inserted":{"50":1,"25":1,"10":1}}`)
	require.Equal(t, fiber.StatusOK, status)
	require.EqualValues(t, 75, body["total_cost"])
	require.EqualValues(t, 10, body["change_returned"])
	require.Equal(t, 7, dbtest.Stock(t, db, chips.ID))

	status, _ = a.do(t, "GET", "/api/cart/"+token, "")
	require.Equal(t, fiber.StatusNotFound, status)
}

func TestCartKeptAfterFailedCheckout(t *testing.T) {
	db := dbtest.Open(t)
	cola := dbtest.SeedProduct(t, db, "Cola", "30.00", 5, models.CategoryDrinks)
	a := newCartApp(t, db)

	status, body := a.do(t, "POST", "/api/cart", fmt.Sprintf(`{"customer_id":"Ravi","items":[{"product_id":%d,"quantity":2}]}`, cola.ID))
	require.Equal(t, fiber.StatusCreated, status)
	token := body["token"].(string)

	status, body = a.do(t, "POST", "/api/cart/"+token+"/checkout", `{"inserted":{"50":1}}`)
	require.Equal(t, fiber.StatusBadRequest, status)
	require.EqualValues(t, 10, body["shortfall"])

	status, _ = a.do(t, "GET", "/api/cart/"+token, "")
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, 5, dbtest.Stock(t, db, cola.ID))
	ttl := a.mr.TTL("vending:cart:" + token)
	require.Positive(t, ttl)
	require.LessOrEqual(t, ttl, 15*time.Minute)

	status, _ = a.do(t, "POST", "/api/cart/"+token+"/checkout", `{"inserted":{"50":1,"10":1}}`)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, 3, dbtest.Stock(t, db, cola.ID))
}

func TestCartRejections(t *testing.T) {
	db := dbtest.Open(t)
	cola := dbtest.SeedProduct(t, db, "Cola", "30.00", 1, models.CategoryDrinks)
	a := newCartApp(t, db)

	status, body := a.do(t, "POST", "/api/cart", fmt.Sprintf(`{"customer_id":"Asha","items":[{"product_id":%d,"quantity":0}]}`, cola.ID))
	require.Equal(t, fiber.StatusBadRequest, status)
	require.Equal(t, "Your cart is empty", body["error"])

	status, _ = a.do(t, "POST", "/api/cart", fmt.Sprintf(`{"customer_id":"Asha","items":[{"product_id":%d,"quantity":2}]}`, cola.ID))
	require.Equal(t, fiber.StatusBadRequest, status)

	status, _ = a.do(t, "POST", "/api/cart", `{"customer_id":"Asha","items":[{"product_id":999,"quantity":1}]}`)
	require.Equal(t, fiber.StatusNotFound, status)

	status, _ = a.do(t, "DELETE", "/api/cart/0b8e6a52-3f62-4d0e-9a43-1f0c0b8f6a11", "")
	require.Equal(t, fiber.StatusNotFound, status)

	status, body = a.do(t, "POST", "/api/cart", fmt.Sprintf(`{"customer_id":"Asha","items":[{"product_id":%d,"quantity":1}]}`, cola.ID))
	require.Equal(t, fiber.StatusCreated, status)
	token := body["token"].(string)

	status, _ = a.do(t, "DELETE", "/api/cart/"+token, "")
	require.Equal(t, fiber.StatusNoContent, status)
	_, err := a.store.Get(context.Background(), token)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentCheckoutSellsCartOnce(t *testing.T) {
	db := dbtest.Open(t)
	cola := dbtest.SeedProduct(t, db, "Cola", "30.00", 20, models.CategoryDrinks)
	a := newCartApp(t, db)

	status, body := a.do(t, "POST", "/api/cart", fmt.Sprintf(`{"customer_id":"Asha","items":[{"product_id":%d,"quantity":1}]}`, cola.ID))
	require.Equal(t, fiber.StatusCreated, status)
	token := body["token"].(string)

	const attempts = 8
	statuses := make([]int, attempts)
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest("POST", "/api/cart/"+token+"/checkout", strings.NewReader(`{"inserted":{"50":1}}`))
			req.Header.Set("Content-Type", "application/json")
			resp, err := a.app.Test(req, -1)
			if err != nil {
				errs[i] = err
				return
			}
			statuses[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	var ok, gone int
	for i := range statuses {
		require.NoError(t, errs[i])
		switch statuses[i] {
		case fiber.StatusOK:
			ok++
		case fiber.StatusNotFound:
			gone++
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, attempts-1, gone)
	require.Equal(t, 19, dbtest.Stock(t, db, cola.ID))
	require.EqualValues(t, 1, countSessions(t, db))
}

func countSessions(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.PurchaseSession{}).Count(&n).Error)
	return n
}
