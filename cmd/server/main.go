package main

import (
	"log"

	"vending-backend/internal/cart"
	"vending-backend/internal/config"
	"vending-backend/internal/database"
	"vending-backend/internal/logger"
	"vending-backend/internal/purchase"
	"vending-backend/internal/server"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zaplog, err := logger.NewZapLog(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zaplog.Sync()

	for _, w := range cfg.Warnings() {
		zaplog.Warn(w)
	}

	if err := database.Init(cfg, zaplog); err != nil {
		zaplog.Fatal("database init failed", zap.Error(err))
	}

	rdb, err := cart.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		zaplog.Fatal("redis connect failed", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	defer rdb.Close()

	svc := purchase.NewService(database.DB, purchase.Options{AutoRestock: cfg.AutoRestock}, zaplog)
	carts := cart.NewStore(rdb, cfg.CartTTL)

	app := server.NewApp(cfg, svc, carts, zaplog)

	zaplog.Info("server listening",
		zap.String("port", cfg.HTTPPort),
		zap.Bool("auto_restock", cfg.AutoRestock),
		zap.Duration("cart_ttl", cfg.CartTTL),
	)
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		zaplog.Fatal("server stopped", zap.Error(err))
	}
}
