package audit

import (
	"encoding/json"
	"errors"
	"fmt"

	"vending-backend/internal/clock"
	"vending-backend/internal/database"
	"vending-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const EntityProduct = "product"

type LogOptions struct {
	UserID      uint
	UserName    string
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

// ProductSnapshot is the JSON shape stored for product edits.
type ProductSnapshot struct {
	ID                uint                   `json:"id"`
	ProductName       string                 `json:"product_name"`
	Cost              decimal.Decimal        `json:"cost"`
	AvailableQuantity int                    `json:"available_quantity"`
	Category          models.ProductCategory `json:"category"`
	IsAvailable       bool                   `json:"is_available"`
}

func SnapshotProduct(p models.Product) ProductSnapshot {
	return ProductSnapshot{
		ID:                p.ID,
		ProductName:       p.ProductName,
		Cost:              p.Cost,
		AvailableQuantity: p.AvailableQuantity,
		Category:          p.Category,
		IsAvailable:       p.IsAvailable,
	}
}

func WriteLog(opts LogOptions) error {
	return WriteLogTx(database.DB, opts)
}

// WriteLogTx writes the log through db, so callers can make it part of their
// own transaction.
func WriteLogTx(db *gorm.DB, opts LogOptions) error {
	log := models.AuditLog{
		UserID:      opts.UserID,
		UserName:    opts.UserName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  marshalState(opts.Before),
		AfterData:   marshalState(opts.After),
	}

	if err := db.Create(&log).Error; err != nil {
		return fmt.Errorf("audit log could not be saved: %w", err)
	}
	return nil
}

func marshalState(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// UndoLog reverts the change recorded by a log entry and records the undo.
func UndoLog(logID uint, userID uint, userName string) error {
	return database.DB.Transaction(func(tx *gorm.DB) error {
		var log models.AuditLog
		if err := tx.First(&log, "id = ?", logID).Error; err != nil {
			return fmt.Errorf("log not found: %w", err)
		}
		if log.IsUndone {
			return errors.New("this change has already been undone")
		}
		if log.EntityType != EntityProduct {
			return fmt.Errorf("unknown entity type: %s", log.EntityType)
		}

		switch log.Action {
		case models.AuditActionCreate:
			if err := tx.Delete(&models.Product{}, "id = ?", log.EntityID).Error; err != nil {
				return fmt.Errorf("product could not be deleted: %w", err)
			}
		case models.AuditActionUpdate, models.AuditActionRestock:
			if err := restoreProduct(tx, log.EntityID, log.BeforeData); err != nil {
				return fmt.Errorf("product could not be restored: %w", err)
			}
		case models.AuditActionDelete:
			if err := recreateProduct(tx, log.BeforeData); err != nil {
				return fmt.Errorf("product could not be recreated: %w", err)
			}
		default:
			return errors.New("this action cannot be undone")
		}

		now := clock.Now()
		log.IsUndone = true
		log.UndoneBy = &userID
		log.UndoneAt = &now
		if err := tx.Save(&log).Error; err != nil {
			return fmt.Errorf("log could not be updated: %w", err)
		}

		return WriteLogTx(tx, LogOptions{
			UserID:      userID,
			UserName:    userName,
			EntityType:  log.EntityType,
			EntityID:    log.EntityID,
			Action:      models.AuditActionUndo,
			Description: fmt.Sprintf("Undone: %s", log.Description),
			Before:      json.RawMessage(log.AfterData),
			After:       json.RawMessage(log.BeforeData),
		})
	})
}

func restoreProduct(tx *gorm.DB, id uint, dataJSON string) error {
	var snap ProductSnapshot
	if err := json.Unmarshal([]byte(dataJSON), &snap); err != nil {
		return err
	}
	res := tx.Model(&models.Product{}).Where("id = ?", id).Updates(map[string]interface{}{
		"product_name":       snap.ProductName,
		"cost":               snap.Cost,
		"available_quantity": snap.AvailableQuantity,
		"category":           snap.Category,
		"is_available":       snap.IsAvailable,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func recreateProduct(tx *gorm.DB, dataJSON string) error {
	var snap ProductSnapshot
	if err := json.Unmarshal([]byte(dataJSON), &snap); err != nil {
		return err
	}
	p := models.Product{
		ProductName:       snap.ProductName,
		Cost:              snap.Cost,
		AvailableQuantity: snap.AvailableQuantity,
		Category:          snap.Category,
		IsAvailable:       snap.IsAvailable,
	}
	return tx.Create(&p).Error
}
