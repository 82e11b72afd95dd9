package purchase

import (
	"context"
	"errors"
	"testing"

	"vending-backend/internal/dbtest"
	"vending-backend/internal/models"
	"vending-backend/internal/money"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestExecuteRecordsEverything(t *testing.T) {
	db := dbtest.Open(t)
	chips := dbtest.SeedProduct(t, db, "Chips", "25.00", 10, models.CategorySnacks)
	cola := dbtest.SeedProduct(t, db, "Cola", "30.00", 10, models.CategoryDrinks)

	svc := NewService(db, Options{}, nil)
	receipt, err := svc.Execute(context.Background(), Command{
		Customer: "Asha",
		Lines:    []Line{{ProductID: chips.ID, Quantity: 2}, {ProductID: cola.ID, Quantity: 1}},
		Inserted: money.Inserted{100: 1, 20: 1, 5: 0},
	})
	require.NoError(t, err)

	// owed = 2*25 + 30 = 80, deposited 120, change 40 = 25 + 10 + 5
	var session models.PurchaseSession
	require.NoError(t, db.Preload("LineItems").Preload("MoneyMovements").First(&session, receipt.Session.ID).Error)
	require.True(t, dec("80").Equal(session.FinalTotal))
	require.True(t, dec("120").Equal(session.DepositedAmount))
	require.True(t, dec("40").Equal(session.ReturnedChange))
	require.True(t, session.UndispensedChange.IsZero())
	require.True(t, session.IsCompleted)
	require.Equal(t, "Asha", session.CustomerID)

	lineTotal := decimal.Zero
	for _, li := range session.LineItems {
		require.Equal(t, models.LineItemPurchase, li.TransactionType)
		lineTotal = lineTotal.Add(li.TotalPrice)
	}
	require.Len(t, session.LineItems, 2)
	require.True(t, lineTotal.Equal(session.FinalTotal))

	inserted, returned := decimal.Zero, decimal.Zero
	var changeRows int
	for _, m := range session.MoneyMovements {
		switch m.Type {
		case models.MoneyInserted:
			inserted = inserted.Add(m.Amount())
		case models.MoneyChange:
			returned = returned.Add(m.Amount())
			changeRows++
		}
	}
	require.True(t, inserted.Equal(session.DepositedAmount))
	require.True(t, returned.Equal(session.ReturnedChange))
	require.Equal(t, 3, changeRows)
	require.True(t, session.DepositedAmount.Sub(session.FinalTotal).Equal(session.ReturnedChange))

	require.Equal(t, 8, dbtest.Stock(t, db, chips.ID))
	require.Equal(t, 9, dbtest.Stock(t, db, cola.ID))
	require.Equal(t, map[int64]int{25: 1, 10: 1, 5: 1}, receipt.Breakdown.Counts)
}

func TestExecuteFlatDeposit(t *testing.T) {
	db := dbtest.Open(t)
	cake := dbtest.SeedProduct(t, db, "Cake", "12.50", 5, models.CategorySnacks)

	svc := NewService(db, Options{}, nil)
	receipt, err := svc.Execute(context.Background(), Command{
		Customer: "Ravi",
		Lines:    []Line{{ProductID: cake.ID, Quantity: 2}},
		Deposit:  decPtr("63"),
	})
	require.NoError(t, err)

	// change 38 pays out 20+10+5, 3 is dropped
	require.True(t, dec("38").Equal(receipt.Session.ReturnedChange))
	require.True(t, dec("3").Equal(receipt.Session.UndispensedChange))
	require.Equal(t, map[int64]int{20: 1, 10: 1, 5: 1}, receipt.Breakdown.Counts)

	require.Len(t, receipt.Inserted, 1)
	require.True(t, dec("63").Equal(receipt.Inserted[0].Denomination))
	require.Equal(t, 1, receipt.Inserted[0].Count)

	dispensed := decimal.Zero
	for _, m := range receipt.Change {
		dispensed = dispensed.Add(m.Amount())
	}
	require.True(t, dispensed.Add(receipt.Session.UndispensedChange).Equal(receipt.Session.ReturnedChange))
}

func TestExecuteValidationOrder(t *testing.T) {
	db := dbtest.Open(t)
	chips := dbtest.SeedProduct(t, db, "Chips", "25.00", 1, models.CategorySnacks)
	svc := NewService(db, Options{}, nil)
	ctx := context.Background()

	_, err := svc.Execute(ctx, Command{Customer: "  ", Deposit: decPtr("10")})
	require.ErrorIs(t, err, ErrMissingCustomer)

	_, err = svc.Execute(ctx, Command{Customer: "Asha", Lines: []Line{{ProductID: chips.ID, Quantity: 0}}})
	require.ErrorIs(t, err, ErrEmptyCart)

	_, err = svc.Execute(ctx, Command{Customer: "Asha", Lines: []Line{{ProductID: chips.ID, Quantity: 1}}, Inserted: money.Inserted{3: 1}})
	require.ErrorIs(t, err, ErrInvalidInput)

	var notFound *ProductNotFoundError
	_, err = svc.Execute(ctx, Command{Customer: "Asha", Lines: []Line{{ProductID: 999, Quantity: 1}}, Deposit: decPtr("100")})
	require.True(t, errors.As(err, &notFound))
	require.EqualValues(t, 999, notFound.ProductID)

	// stock is checked before funds
	var short *InsufficientStockError
	_, err = svc.Execute(ctx, Command{Customer: "Asha", Lines: []Line{{ProductID: chips.ID, Quantity: 2}}})
	require.True(t, errors.As(err, &short))
	require.Equal(t, 1, short.Available)

	require.Zero(t, countRows(t, db, &models.PurchaseSession{}))
}

func TestExecuteRejectsMoneyOutOfRange(t *testing.T) {
	db := dbtest.Open(t)
	bar := dbtest.SeedProduct(t, db, "Protein Bar", "100.00", 5, models.CategorySnacks)
	svc := NewService(db, Options{}, nil)
	ctx := context.Background()
	lines := []Line{{ProductID: bar.ID, Quantity: 1}}

	for name, cmd := range map[string]Command{
		"huge count":       {Customer: "Asha", Lines: lines, Inserted: money.Inserted{200: 92233720368547759}},
		"count over cap":   {Customer: "Asha", Lines: lines, Inserted: money.Inserted{5: money.MaxCount + 1}},
		"sub-paisa":        {Customer: "Asha", Lines: lines, Deposit: decPtr("100.005")},
		"over column size": {Customer: "Asha", Lines: lines, Deposit: decPtr("1000000")},
	} {
		_, err := svc.Execute(ctx, cmd)
		require.ErrorIs(t, err, ErrInvalidInput, name)
	}
	require.Zero(t, countRows(t, db, &models.PurchaseSession{}))
	require.Equal(t, 5, dbtest.Stock(t, db, bar.ID))

	receipt, err := svc.Execute(ctx, Command{Customer: "Asha", Lines: lines, Inserted: money.Inserted{200: money.MaxCount}})
	require.NoError(t, err)

	var session models.PurchaseSession
	require.NoError(t, db.Preload("MoneyMovements").First(&session, receipt.Session.ID).Error)
	require.True(t, dec("200000").Equal(session.DepositedAmount))
	inserted := decimal.Zero
	for _, m := range session.MoneyMovements {
		if m.Type == models.MoneyInserted {
			inserted = inserted.Add(m.Amount())
		}
	}
	require.True(t, inserted.Equal(session.DepositedAmount))
	require.True(t, dec("199900").Equal(session.ReturnedChange))
}

func TestExecuteRejectsUnavailableProduct(t *testing.T) {
	db := dbtest.Open(t)
	chips := dbtest.SeedProduct(t, db, "Chips", "25.00", 5, models.CategorySnacks)
	require.NoError(t, db.Model(&chips).Update("is_available", false).Error)

	svc := NewService(db, Options{}, nil)
	_, err := svc.Execute(context.Background(), Command{
		Customer: "Asha",
		Lines:    []Line{{ProductID: chips.ID, Quantity: 1}},
		Deposit:  decPtr("25"),
	})
	var unavailable *ProductUnavailableError
	require.True(t, errors.As(err, &unavailable))
}

func TestExecuteInsufficientFunds(t *testing.T) {
	db := dbtest.Open(t)
	cola := dbtest.SeedProduct(t, db, "Cola", "30.00", 5, models.CategoryDrinks)

	svc := NewService(db, Options{}, nil)
	_, err := svc.Execute(context.Background(), Command{
		Customer: "Asha",
		Lines:    []Line{{ProductID: cola.ID, Quantity: 2}},
		Inserted: money.Inserted{20: 2, 10: 1},
	})

	var funds *InsufficientFundsError
	require.True(t, errors.As(err, &funds))
	require.True(t, dec("10").Equal(funds.Shortfall()))
	require.Equal(t, "insufficient funds, need Rs 10.00 more", funds.Error())

	require.Equal(t, 5, dbtest.Stock(t, db, cola.ID))
	require.Zero(t, countRows(t, db, &models.PurchaseSession{}))
	require.Zero(t, countRows(t, db, &models.MoneyMovement{}))
}

func TestSequentialPurchasesDepleteStock(t *testing.T) {
	db := dbtest.Open(t)
	juice := dbtest.SeedProduct(t, db, "Juice", "20.00", 5, models.CategoryDrinks)

	svc := NewService(db, Options{}, nil)
	buy := Command{
		Customer: "Asha",
		Lines:    []Line{{ProductID: juice.ID, Quantity: 3}},
		Inserted: money.Inserted{50: 1, 10: 1},
	}

	_, err := svc.Execute(context.Background(), buy)
	require.NoError(t, err)
	require.Equal(t, 2, dbtest.Stock(t, db, juice.ID))

	_, err = svc.Execute(context.Background(), buy)
	var short *InsufficientStockError
	require.True(t, errors.As(err, &short))
	require.Equal(t, 2, short.Available)
	require.Equal(t, 3, short.Requested)

	require.Equal(t, 2, dbtest.Stock(t, db, juice.ID))
	require.EqualValues(t, 1, countRows(t, db, &models.PurchaseSession{}))
}

func TestAutoRestockRefillsBeforeSale(t *testing.T) {
	db := dbtest.Open(t)
	water := dbtest.SeedProduct(t, db, "Water", "10.00", 2, models.CategoryDrinks)

	svc := NewService(db, Options{AutoRestock: true}, nil)
	receipt, err := svc.Execute(context.Background(), Command{
		Customer: "Asha",
		Lines:    []Line{{ProductID: water.ID, Quantity: 10}},
		Inserted: money.Inserted{100: 1},
	})
	require.NoError(t, err)
	require.Equal(t, 20, dbtest.Stock(t, db, water.ID))

	require.Len(t, receipt.Refills, 1)
	require.Equal(t, 28, receipt.Refills[0].Quantity)
	require.True(t, receipt.Refills[0].TotalPrice.IsZero())

	var items []models.LineItem
	require.NoError(t, db.Where("session_id = ?", receipt.Session.ID).Order("id").Find(&items).Error)
	require.Len(t, items, 2)
	require.Equal(t, models.LineItemRefill, items[0].TransactionType)
	require.Equal(t, models.LineItemPurchase, items[1].TransactionType)
	require.Equal(t, 10, items[1].Quantity)
	require.True(t, dec("100").Equal(items[1].TotalPrice))
}

func TestAutoRestockCannotExceedCapacity(t *testing.T) {
	db := dbtest.Open(t)
	water := dbtest.SeedProduct(t, db, "Water", "1.00", 2, models.CategoryDrinks)

	svc := NewService(db, Options{AutoRestock: true}, nil)
	_, err := svc.Execute(context.Background(), Command{
		Customer: "Asha",
		Lines:    []Line{{ProductID: water.ID, Quantity: 31}},
		Deposit:  decPtr("50"),
	})
	var short *InsufficientStockError
	require.True(t, errors.As(err, &short))
	require.Equal(t, 2, dbtest.Stock(t, db, water.ID))
	require.Zero(t, countRows(t, db, &models.LineItem{}))
}

func TestStockRaceIsClosedByConditionalDecrement(t *testing.T) {
	db := dbtest.Open(t)
	bar := dbtest.SeedProduct(t, db, "Bar", "5.00", 3, models.CategorySnacks)
	svc := NewService(db, Options{}, nil)

	// another purchase takes the stock between the quote and the decrement
	tx := db.Begin()
	q, err := svc.quote(tx, Command{Customer: "Asha", Lines: []Line{{ProductID: bar.ID, Quantity: 3}}})
	require.NoError(t, err)
	require.NoError(t, tx.Model(&models.Product{}).Where("id = ?", bar.ID).Update("available_quantity", 1).Error)

	_, err = svc.takeStock(tx, q.Lines[0].Product, 3, 0, q.Lines[0].Product.UpdatedAt)
	var short *InsufficientStockError
	require.True(t, errors.As(err, &short))
	require.Equal(t, 1, short.Available)
	require.NoError(t, tx.Rollback().Error)

	require.Equal(t, 3, dbtest.Stock(t, db, bar.ID))
}

func TestQuoteMergesRepeatedProducts(t *testing.T) {
	db := dbtest.Open(t)
	chips := dbtest.SeedProduct(t, db, "Chips", "25.00", 10, models.CategorySnacks)

	svc := NewService(db, Options{}, nil)
	q, err := svc.Quote(context.Background(), "Asha", []Line{
		{ProductID: chips.ID, Quantity: 1},
		{ProductID: chips.ID, Quantity: 2},
	})
	require.NoError(t, err)
	require.Len(t, q.Lines, 1)
	require.Equal(t, 3, q.Lines[0].Quantity)
	require.True(t, dec("75").Equal(q.Total))
}
