package catalog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"vending-backend/internal/audit"
	"vending-backend/internal/auth"
	"vending-backend/internal/clock"
	"vending-backend/internal/database"
	"vending-backend/internal/models"
	"vending-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ProductResponse struct {
	ID                uint                   `json:"id"`
	ProductName       string                 `json:"product_name"`
	Cost              float64                `json:"cost"`
	AvailableQuantity int                    `json:"available_quantity"`
	Category          models.ProductCategory `json:"category"`
	IsAvailable       bool                   `json:"is_available"`
}

type CreateProductRequest struct {
	ProductName       string           `json:"product_name" validate:"required,max=120"`
	Cost              *decimal.Decimal `json:"cost" validate:"required"`
	AvailableQuantity *int             `json:"available_quantity" validate:"omitempty,min=0"`
	Category          string           `json:"category" validate:"omitempty,oneof=snacks drinks"`
	IsAvailable       *bool            `json:"is_available"`
}

type UpdateProductRequest struct {
	ProductName       *string          `json:"product_name" validate:"omitempty,max=120"`
	Cost              *decimal.Decimal `json:"cost"`
	AvailableQuantity *int             `json:"available_quantity" validate:"omitempty,min=0"`
	Category          *string          `json:"category" validate:"omitempty,oneof=snacks drinks"`
	IsAvailable       *bool            `json:"is_available"`
}

func toResponse(p models.Product) ProductResponse {
	return ProductResponse{
		ID:                p.ID,
		ProductName:       p.ProductName,
		Cost:              p.Cost.InexactFloat64(),
		AvailableQuantity: p.AvailableQuantity,
		Category:          p.Category,
		IsAvailable:       p.IsAvailable,
	}
}

func parseID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid product ID")
	}
	return uint(id), nil
}

func loadProduct(id uint) (models.Product, error) {
	var p models.Product
	if err := database.DB.First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return p, fiber.NewError(fiber.StatusNotFound, "Product not found")
		}
		return p, fiber.NewError(fiber.StatusInternalServerError, "Product could not be loaded")
	}
	return p, nil
}

// writeAudit records an operator edit. A failed audit write never fails the edit.
func writeAudit(c *fiber.Ctx, zaplog *zap.Logger, opts audit.LogOptions) {
	user, err := auth.CurrentUser(c, auth.FindUser)
	if err != nil {
		return
	}
	opts.UserID = user.ID
	opts.UserName = user.Name
	opts.EntityType = audit.EntityProduct
	if err := audit.WriteLog(opts); err != nil {
		zaplog.Warn("audit log not written", zap.Uint("product_id", opts.EntityID), zap.Error(err))
	}
}

// GET /api/products?category=drinks&available=true
func ListProductsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := database.DB.Model(&models.Product{})

		if category := c.Query("category"); category != "" {
			if !models.ProductCategory(category).Valid() {
				return fiber.NewError(fiber.StatusBadRequest, "Invalid category (snacks|drinks)")
			}
			dbq = dbq.Where("category = ?", category)
		}
		if available := c.Query("available"); available != "" {
			on, err := strconv.ParseBool(available)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "available must be true or false")
			}
			dbq = dbq.Where("is_available = ?", on)
		}

		var products []models.Product
		if err := dbq.Order("category asc, product_name asc").Find(&products).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Products could not be listed")
		}

		res := make([]ProductResponse, 0, len(products))
		for _, p := range products {
			res = append(res, toResponse(p))
		}
		return c.JSON(res)
	}
}

// GET /api/products/:id
func GetProductHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		p, err := loadProduct(id)
		if err != nil {
			return err
		}
		return c.JSON(toResponse(p))
	}
}

// POST /api/admin/products
func CreateProductHandler(zaplog *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateProductRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		body.ProductName = strings.TrimSpace(body.ProductName)
		if err := validation.Struct(body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if body.Cost.IsNegative() {
			return fiber.NewError(fiber.StatusBadRequest, "cost cannot be negative")
		}

		p := models.Product{
			ProductName:       body.ProductName,
			Cost:              body.Cost.Round(2),
			AvailableQuantity: models.ProductCapacity,
			Category:          models.CategorySnacks,
			IsAvailable:       true,
		}
		if body.AvailableQuantity != nil {
			p.AvailableQuantity = *body.AvailableQuantity
		}
		if body.Category != "" {
			p.Category = models.ProductCategory(body.Category)
		}
		if body.IsAvailable != nil {
			p.IsAvailable = *body.IsAvailable
		}

		if err := database.DB.Create(&p).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Product could not be created")
		}

		writeAudit(c, zaplog, audit.LogOptions{
			EntityID:    p.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Product created: %s (Rs %s)", p.ProductName, p.Cost.StringFixed(2)),
			After:       audit.SnapshotProduct(p),
		})

		return c.Status(fiber.StatusCreated).JSON(toResponse(p))
	}
}

// PUT|PATCH /api/admin/products/:id
// Fields left out of the body keep their value; last write wins.
func UpdateProductHandler(zaplog *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		p, err := loadProduct(id)
		if err != nil {
			return err
		}
		before := audit.SnapshotProduct(p)

		var body UpdateProductRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if err := validation.Struct(body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if body.ProductName != nil {
			name := strings.TrimSpace(*body.ProductName)
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "product_name cannot be empty")
			}
			p.ProductName = name
		}
		if body.Cost != nil {
			if body.Cost.IsNegative() {
				return fiber.NewError(fiber.StatusBadRequest, "cost cannot be negative")
			}
			p.Cost = body.Cost.Round(2)
		}
		if body.AvailableQuantity != nil {
			p.AvailableQuantity = *body.AvailableQuantity
		}
		if body.Category != nil {
			p.Category = models.ProductCategory(*body.Category)
		}
		if body.IsAvailable != nil {
			p.IsAvailable = *body.IsAvailable
		}

		if err := database.DB.Save(&p).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Product could not be updated")
		}

		writeAudit(c, zaplog, audit.LogOptions{
			EntityID:    p.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Product updated: %s", p.ProductName),
			Before:      before,
			After:       audit.SnapshotProduct(p),
		})

		return c.JSON(toResponse(p))
	}
}

// DELETE /api/admin/products/:id
func DeleteProductHandler(zaplog *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		p, err := loadProduct(id)
		if err != nil {
			return err
		}

		if err := database.DB.Delete(&models.Product{}, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Product could not be deleted")
		}

		writeAudit(c, zaplog, audit.LogOptions{
			EntityID:    p.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Product deleted: %s", p.ProductName),
			Before:      audit.SnapshotProduct(p),
		})

		return c.SendStatus(fiber.StatusNoContent)
	}
}

// POST /api/admin/products/:id/restock
// Refills the product to capacity and logs the refill as an unowned line item.
func RestockProductHandler(zaplog *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}

		before, after, err := Restock(database.DB, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "Product not found")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "Product could not be restocked")
		}

		writeAudit(c, zaplog, audit.LogOptions{
			EntityID:    after.ID,
			Action:      models.AuditActionRestock,
			Description: fmt.Sprintf("Product restocked: %s (%d -> %d)", after.ProductName, before.AvailableQuantity, after.AvailableQuantity),
			Before:      audit.SnapshotProduct(before),
			After:       audit.SnapshotProduct(after),
		})

		return c.JSON(fiber.Map{
			"message":  "Product restocked",
			"refilled": after.AvailableQuantity - before.AvailableQuantity,
			"product":  toResponse(after),
		})
	}
}

// Restock sets a product's stock to models.ProductCapacity and records the
// added units as a refill line item without a session.
func Restock(db *gorm.DB, id uint) (before, after models.Product, err error) {
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&before, "id = ?", id).Error; err != nil {
			return err
		}
		after = before

		delta := models.ProductCapacity - before.AvailableQuantity
		if delta <= 0 {
			return nil
		}

		refill := models.LineItem{
			ProductID:       before.ID,
			Quantity:        delta,
			TotalPrice:      decimal.Zero,
			TransactionType: models.LineItemRefill,
			Timestamp:       clock.Now(),
		}
		if err := tx.Create(&refill).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Product{}).Where("id = ?", id).
			UpdateColumn("available_quantity", models.ProductCapacity).Error; err != nil {
			return err
		}
		after.AvailableQuantity = models.ProductCapacity
		return nil
	})
	return before, after, err
}
