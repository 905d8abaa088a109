package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/vostoklab/workshop_backend/config"
	"github.com/vostoklab/workshop_backend/utils"
	"gorm.io/gorm"
)

// HistoryEvent is the append-only audit log. One row per domain event;
// rows are never updated or deleted.
type HistoryEvent struct {
	ID               int       `gorm:"primary_key" json:"id"`
	ReceiptId        int       `gorm:"index;not null" json:"receipt_id"`
	EventType        string    `gorm:"size:50;not null" json:"event_type"`
	Payload          string    `gorm:"type:text" json:"payload"`
	TelegramId       int64     `gorm:"index" json:"telegram_id"`
	TelegramUsername string    `gorm:"size:100" json:"telegram_username"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// createHistory appends an audit row inside the caller's transaction.
// The acting user is read from the transaction's context; system-originated
// events (no actor in context) are recorded with zero actor fields.
func createHistory(tx *gorm.DB, receiptId int, eventType string, payload interface{}) error {
	var history HistoryEvent

	p, _ := json.Marshal(payload)

	ctx := tx.Statement.Context
	telegramId, _ := utils.GetTelegramIdFromContext(ctx)
	telegramUsername, _ := utils.GetTelegramUsernameFromContext(ctx)

	history.ReceiptId = receiptId
	history.EventType = eventType
	history.Payload = string(p)
	history.TelegramId = telegramId
	history.TelegramUsername = telegramUsername

	return tx.Create(&history).Error
}

// AppendHistory writes a single audit row outside any caller transaction.
func AppendHistory(ctx context.Context, receiptId int, eventType string, payload interface{}) (*HistoryEvent, error) {
	db := config.GetDB()

	p, _ := json.Marshal(payload)
	telegramId, _ := utils.GetTelegramIdFromContext(ctx)
	telegramUsername, _ := utils.GetTelegramUsernameFromContext(ctx)

	history := HistoryEvent{
		ReceiptId:        receiptId,
		EventType:        eventType,
		Payload:          string(p),
		TelegramId:       telegramId,
		TelegramUsername: telegramUsername,
	}
	if err := db.WithContext(ctx).Create(&history).Error; err != nil {
		return nil, utils.StorageError(err)
	}
	return &history, nil
}

func GetHistoryByReceipt(ctx context.Context, receiptId int, limit int) ([]*HistoryEvent, error) {
	db := config.GetDB()
	var results []*HistoryEvent

	dbCtx := db.WithContext(ctx).
		Where("receipt_id = ?", receiptId).
		Order("created_at DESC")
	if limit > 0 {
		dbCtx = dbCtx.Limit(limit)
	}
	err := dbCtx.Find(&results).Error
	if err != nil {
		return nil, utils.StorageError(err)
	}
	return results, nil
}

func GetHistoryEvent(ctx context.Context, id int) (*HistoryEvent, error) {
	db := config.GetDB()
	var result HistoryEvent

	err := db.WithContext(ctx).First(&result, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFoundError("history event %d not found", id)
		}
		return nil, utils.StorageError(err)
	}
	return &result, nil
}
