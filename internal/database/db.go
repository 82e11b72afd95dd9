package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"vending-backend/internal/config"
	"vending-backend/internal/models"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultMaxOpenConns = 25
	defaultMaxIdleConns = 5
	defaultConnLifetime = time.Hour
	defaultConnIdleTime = 30 * time.Minute
	defaultPingTimeout  = 5 * time.Second
)

var DB *gorm.DB

// Init opens the Postgres pool, migrates the schema and creates the bootstrap
// operator account.
func Init(cfg *config.Config, zaplog *zap.Logger) error {
	sqlDB, err := openPool(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("database: connect: %w", err)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		sqlDB.Close()
		return fmt.Errorf("database: open gorm: %w", err)
	}

	if err := prepare(db, sqlDB, cfg); err != nil {
		return err
	}

	DB = db
	zaplog.Info("database connected, migration complete")
	return nil
}

// prepare migrates db and seeds the admin, closing sqlDB if either step fails.
func prepare(db *gorm.DB, sqlDB *sql.DB, cfg *config.Config) error {
	err := Migrate(db)
	if err == nil {
		err = EnsureAdmin(db, cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword)
	}
	if err != nil {
		sqlDB.Close()
	}
	return err
}

func openPool(dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("empty DSN")
	}

	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(defaultMaxOpenConns)
	sqlDB.SetMaxIdleConns(defaultMaxIdleConns)
	sqlDB.SetConnMaxLifetime(defaultConnLifetime)
	sqlDB.SetConnMaxIdleTime(defaultConnIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), defaultPingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return sqlDB, nil
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("database: automigrate: %w", err)
	}
	return nil
}

// EnsureAdmin creates an operator account for email unless one exists. An
// empty email disables the bootstrap.
func EnsureAdmin(db *gorm.DB, name, email, password string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil
	}

	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return fmt.Errorf("database: look up admin: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("database: hash admin password: %w", err)
	}
	user := models.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         models.RoleAdmin,
	}
	if err := db.Create(&user).Error; err != nil {
		return fmt.Errorf("database: create admin: %w", err)
	}
	return nil
}
