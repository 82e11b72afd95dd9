package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vending-backend/internal/clock"
	"vending-backend/internal/models"
	"vending-backend/internal/money"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Options struct {
	// AutoRestock refills a product to models.ProductCapacity when a line
	// would overdraw it, logging the refill as a zero-priced line item.
	AutoRestock bool
}

// Service runs purchases as single database transactions.
type Service struct {
	db     *gorm.DB
	opts   Options
	zaplog *zap.Logger
}

func NewService(db *gorm.DB, opts Options, zaplog *zap.Logger) *Service {
	if zaplog == nil {
		zaplog = zap.NewNop()
	}
	return &Service{db: db, opts: opts, zaplog: zaplog}
}

// QuoteLine is a cart line priced at the product's current cost.
type QuoteLine struct {
	Product  models.Product
	Quantity int
	Total    decimal.Decimal
}

// Quote is a priced cart.
type Quote struct {
	Customer string
	Lines    []QuoteLine
	Total    decimal.Decimal
}

// Receipt is everything a completed purchase wrote.
type Receipt struct {
	Session   models.PurchaseSession
	Lines     []QuoteLine
	Purchases []models.LineItem
	Refills   []models.LineItem
	Inserted  []models.MoneyMovement
	Change    []models.MoneyMovement
	Breakdown money.Breakdown
}

// Quote prices the lines and checks them against the catalog without
// changing anything.
func (s *Service) Quote(ctx context.Context, customer string, lines []Line) (*Quote, error) {
	cmd := Command{Customer: customer, Lines: lines}
	if err := cmd.normalize(); err != nil {
		return nil, err
	}
	return s.quote(s.db.WithContext(ctx), cmd)
}

func (s *Service) quote(db *gorm.DB, cmd Command) (*Quote, error) {
	q := &Quote{Customer: cmd.Customer, Total: decimal.Zero}
	for _, l := range cmd.Lines {
		var p models.Product
		if err := db.First(&p, "id = ?", l.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, &ProductNotFoundError{ProductID: l.ProductID}
			}
			return nil, fmt.Errorf("load product %d: %w", l.ProductID, err)
		}
		if !p.IsAvailable {
			return nil, &ProductUnavailableError{ProductID: p.ID, Name: p.ProductName}
		}
		if l.Quantity > s.maxSellable(p) {
			return nil, &InsufficientStockError{
				ProductID: p.ID,
				Name:      p.ProductName,
				Available: p.AvailableQuantity,
				Requested: l.Quantity,
			}
		}

		total := p.Cost.Mul(decimal.NewFromInt(int64(l.Quantity)))
		q.Lines = append(q.Lines, QuoteLine{Product: p, Quantity: l.Quantity, Total: total})
		q.Total = q.Total.Add(total)
	}
	return q, nil
}

func (s *Service) maxSellable(p models.Product) int {
	if s.opts.AutoRestock && p.AvailableQuantity < models.ProductCapacity {
		return models.ProductCapacity
	}
	return p.AvailableQuantity
}

// Execute validates cmd, then records the session, its line items and money
// movements and decrements stock. Either all of it is committed or none.
func (s *Service) Execute(ctx context.Context, cmd Command) (*Receipt, error) {
	if err := cmd.normalize(); err != nil {
		return nil, err
	}

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("begin purchase: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	receipt, err := s.execute(tx, cmd)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("commit purchase: %w", err)
	}

	s.zaplog.Info("purchase completed",
		zap.Uint("session_id", receipt.Session.ID),
		zap.String("customer", receipt.Session.CustomerID),
		zap.String("total", receipt.Session.FinalTotal.StringFixed(2)),
		zap.String("deposited", receipt.Session.DepositedAmount.StringFixed(2)),
		zap.String("change", receipt.Session.ReturnedChange.StringFixed(2)),
	)
	if !receipt.Breakdown.Remainder.IsZero() {
		s.zaplog.Warn("change not fully dispensed",
			zap.Uint("session_id", receipt.Session.ID),
			zap.String("undispensed", receipt.Breakdown.Remainder.StringFixed(2)),
		)
	}
	return receipt, nil
}

func (s *Service) execute(tx *gorm.DB, cmd Command) (*Receipt, error) {
	q, err := s.quote(tx, cmd)
	if err != nil {
		return nil, err
	}

	funds := cmd.Funds()
	if funds.LessThan(q.Total) {
		return nil, &InsufficientFundsError{Owed: q.Total, Deposited: funds}
	}

	change := funds.Sub(q.Total)
	breakdown := money.MakeChange(change, money.Denominations)
	now := clock.Now()

	r := &Receipt{Lines: q.Lines, Breakdown: breakdown}
	r.Session = models.PurchaseSession{
		CustomerID:        q.Customer,
		DepositedAmount:   funds,
		FinalTotal:        q.Total,
		ReturnedChange:    change,
		UndispensedChange: breakdown.Remainder,
		SessionStart:      now,
		IsCompleted:       true,
	}
	if err := tx.Create(&r.Session).Error; err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	sessionID := r.Session.ID

	r.Inserted = insertedMovements(sessionID, cmd, now)
	for _, d := range breakdown.Denominations() {
		r.Change = append(r.Change, models.MoneyMovement{
			SessionID:    sessionID,
			Denomination: decimal.NewFromInt(d),
			Count:        breakdown.Counts[d],
			Type:         models.MoneyChange,
			Timestamp:    now,
		})
	}
	movements := append(append([]models.MoneyMovement{}, r.Inserted...), r.Change...)
	if len(movements) > 0 {
		if err := tx.Create(&movements).Error; err != nil {
			return nil, fmt.Errorf("create money movements: %w", err)
		}
		copy(r.Inserted, movements[:len(r.Inserted)])
		copy(r.Change, movements[len(r.Inserted):])
	}

	for _, l := range q.Lines {
		refill, err := s.takeStock(tx, l.Product, l.Quantity, sessionID, now)
		if err != nil {
			return nil, err
		}
		if refill != nil {
			r.Refills = append(r.Refills, *refill)
		}

		item := models.LineItem{
			SessionID:       &sessionID,
			ProductID:       l.Product.ID,
			Quantity:        l.Quantity,
			TotalPrice:      l.Total,
			TransactionType: models.LineItemPurchase,
			Timestamp:       now,
		}
		if err := tx.Create(&item).Error; err != nil {
			return nil, fmt.Errorf("create line item: %w", err)
		}
		r.Purchases = append(r.Purchases, item)
	}

	return r, nil
}

// insertedMovements records the money put in: one row per denomination, or a
// single row carrying a flat deposit.
func insertedMovements(sessionID uint, cmd Command, now time.Time) []models.MoneyMovement {
	var out []models.MoneyMovement
	if cmd.Inserted != nil {
		for _, d := range cmd.Inserted.NonZero() {
			out = append(out, models.MoneyMovement{
				SessionID:    sessionID,
				Denomination: decimal.NewFromInt(d),
				Count:        cmd.Inserted[d],
				Type:         models.MoneyInserted,
				Timestamp:    now,
			})
		}
		return out
	}
	if funds := cmd.Funds(); funds.IsPositive() {
		out = append(out, models.MoneyMovement{
			SessionID:    sessionID,
			Denomination: funds,
			Count:        1,
			Type:         models.MoneyInserted,
			Timestamp:    now,
		})
	}
	return out
}

// takeStock decrements stock only if enough is left, so two purchases racing
// for the last units cannot both succeed. With AutoRestock a short product is
// first refilled to capacity.
func (s *Service) takeStock(tx *gorm.DB, p models.Product, qty int, sessionID uint, now time.Time) (*models.LineItem, error) {
	ok, err := decrement(tx, p.ID, qty)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, nil
	}

	var current models.Product
	if err := tx.First(&current, "id = ?", p.ID).Error; err != nil {
		return nil, fmt.Errorf("reload product %d: %w", p.ID, err)
	}
	short := &InsufficientStockError{
		ProductID: p.ID,
		Name:      p.ProductName,
		Available: current.AvailableQuantity,
		Requested: qty,
	}
	if !s.opts.AutoRestock || qty > models.ProductCapacity {
		return nil, short
	}

	refill := models.LineItem{
		SessionID:       &sessionID,
		ProductID:       p.ID,
		Quantity:        models.ProductCapacity - current.AvailableQuantity,
		TotalPrice:      decimal.Zero,
		TransactionType: models.LineItemRefill,
		Timestamp:       now,
	}
	if err := tx.Create(&refill).Error; err != nil {
		return nil, fmt.Errorf("create refill line item: %w", err)
	}
	if err := tx.Model(&models.Product{}).Where("id = ?", p.ID).
		UpdateColumn("available_quantity", models.ProductCapacity).Error; err != nil {
		return nil, fmt.Errorf("refill product %d: %w", p.ID, err)
	}
	s.zaplog.Warn("product auto-restocked during purchase",
		zap.Uint("product_id", p.ID),
		zap.Int("refilled", refill.Quantity),
	)

	ok, err = decrement(tx, p.ID, qty)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, short
	}
	return &refill, nil
}

func decrement(tx *gorm.DB, productID uint, qty int) (bool, error) {
	res := tx.Model(&models.Product{}).
		Where("id = ? AND available_quantity >= ?", productID, qty).
		UpdateColumn("available_quantity", gorm.Expr("available_quantity - ?", qty))
	if res.Error != nil {
		return false, fmt.Errorf("decrement stock of product %d: %w", productID, res.Error)
	}
	return res.RowsAffected == 1, nil
}
