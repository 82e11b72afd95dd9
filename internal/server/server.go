// Package server wires the HTTP routes of the vending backend.
package server

import (
	"strings"

	"vending-backend/internal/audit"
	"vending-backend/internal/auth"
	"vending-backend/internal/cart"
	"vending-backend/internal/catalog"
	"vending-backend/internal/config"
	"vending-backend/internal/logger"
	"vending-backend/internal/models"
	"vending-backend/internal/purchase"
	"vending-backend/internal/reports"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

// NewApp builds the fiber app. Handlers read and write through database.DB,
// which must be initialised first.
func NewApp(cfg *config.Config, svc *purchase.Service, carts *cart.Store, zaplog *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "vending-backend",
		ErrorHandler: logger.ErrorHandler(zaplog),
	})

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(recover.New())
	app.Use(logger.RequestLog(zaplog))
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	// Machine-facing
	api.Get("/products", catalog.ListProductsHandler())
	api.Get("/products/:id", catalog.GetProductHandler())
	api.Post("/purchase", purchase.PurchaseHandler(svc))

	api.Post("/cart", cart.CreateCartHandler(carts, svc))
	api.Get("/cart/:token", cart.GetCartHandler(carts))
	api.Delete("/cart/:token", cart.DeleteCartHandler(carts))
	api.Post("/cart/:token/checkout", cart.CheckoutHandler(carts, svc, zaplog))

	// Operator auth
	api.Post("/auth/register-admin", auth.RegisterAdminHandler())
	api.Post("/auth/login", auth.LoginHandler(cfg.JWTSecret))

	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg.JWTSecret))
	protected.Get("/auth/me", auth.MeHandler())

	admin := protected.Group("/admin")
	admin.Use(auth.RequireRole(models.RoleAdmin))

	// Catalog
	admin.Post("/products", catalog.CreateProductHandler(zaplog))
	admin.Put("/products/:id", catalog.UpdateProductHandler(zaplog))
	admin.Patch("/products/:id", catalog.UpdateProductHandler(zaplog))
	admin.Delete("/products/:id", catalog.DeleteProductHandler(zaplog))
	admin.Post("/products/:id/restock", catalog.RestockProductHandler(zaplog))

	// Reports
	admin.Get("/sessions", reports.ListSessionsHandler())
	admin.Get("/sessions/export", reports.ExportSessionsHandler())
	admin.Get("/sessions/:id", reports.GetSessionHandler())
	admin.Get("/purchases", reports.ListPurchasesHandler())
	admin.Get("/money-movements", reports.ListMoneyMovementsHandler())
	admin.Get("/summary", reports.SummaryHandler())

	// Audit logs
	admin.Get("/audit-logs", audit.ListAuditLogsHandler())
	admin.Post("/audit-logs/:id/undo", audit.UndoAuditLogHandler())

	return app
}
