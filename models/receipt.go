package models

import (
	"context"
	"errors"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/vostoklab/workshop_backend/config"
	"github.com/vostoklab/workshop_backend/utils"
	"gorm.io/gorm"
)

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

type Receipt struct {
	ID              int        `gorm:"primary_key" json:"id"`
	ReceiptNumber   string     `gorm:"size:100;uniqueIndex;not null" json:"receipt_number" binding:"required"`
	CurrentDeadline *time.Time `json:"current_deadline"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

type NewReceipt struct {
	ReceiptNumber   string     `json:"receipt_number" binding:"required"`
	CurrentDeadline *time.Time `json:"current_deadline"`
}

func GetReceipt(ctx context.Context, id int) (*Receipt, error) {
	db := config.GetDB()
	var result Receipt

	err := db.WithContext(ctx).First(&result, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFoundError("receipt %d not found", id)
		}
		return nil, utils.StorageError(err)
	}
	return &result, nil
}

func GetReceiptByNumber(ctx context.Context, receiptNumber string) (*Receipt, error) {
	db := config.GetDB()
	var result Receipt

	err := db.WithContext(ctx).Where("receipt_number = ?", receiptNumber).First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFoundError("receipt %s not found", receiptNumber)
		}
		return nil, utils.StorageError(err)
	}
	return &result, nil
}

// GetOrCreateReceipt looks a receipt up by number and creates it when absent.
// Creation writes a receipt_created history row in the same transaction.
func GetOrCreateReceipt(ctx context.Context, input *NewReceipt) (*Receipt, error) {
	existing, err := GetReceiptByNumber(ctx, input.ReceiptNumber)
	if err == nil {
		return existing, nil
	}
	if utils.KindOf(err) != utils.KindNotFound {
		return nil, err
	}

	db := config.GetDB()
	receipt := Receipt{
		ReceiptNumber:   input.ReceiptNumber,
		CurrentDeadline: input.CurrentDeadline,
	}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&receipt).Error; err != nil {
			return err
		}
		payload := map[string]interface{}{
			"receipt_number": receipt.ReceiptNumber,
		}
		if receipt.CurrentDeadline != nil {
			payload["deadline"] = receipt.CurrentDeadline.Format(time.RFC3339)
		}
		return createHistory(tx, receipt.ID, EventReceiptCreated, payload)
	})
	if err != nil {
		// Two concurrent creates race on the receipt_number unique index;
		// the loser re-reads the winner's row.
		if isDuplicateKeyErr(err) {
			return GetReceiptByNumber(ctx, input.ReceiptNumber)
		}
		return nil, utils.StorageError(err)
	}
	return &receipt, nil
}

// SetReceiptDeadline updates the deadline and writes the deadline_changed
// history row inside tx. Rescheduling the reminders is the caller's job, in
// the same transaction.
func SetReceiptDeadline(tx *gorm.DB, receipt *Receipt, newDeadline *time.Time) error {
	oldDeadline := receipt.CurrentDeadline

	err := tx.Model(&Receipt{}).
		Where("id = ?", receipt.ID).
		Update("current_deadline", newDeadline).Error
	if err != nil {
		return err
	}
	receipt.CurrentDeadline = newDeadline

	return createHistory(tx, receipt.ID, EventDeadlineChanged, map[string]interface{}{
		"old_deadline": formatDeadline(oldDeadline),
		"new_deadline": formatDeadline(newDeadline),
	})
}

func formatDeadline(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func GetReceipts(ctx context.Context, skip int, limit int) ([]*Receipt, error) {
	db := config.GetDB()
	var results []*Receipt

	err := db.WithContext(ctx).
		Order("created_at DESC").
		Offset(skip).
		Limit(limit).
		Find(&results).Error
	if err != nil {
		return nil, utils.StorageError(err)
	}
	return results, nil
}
