package models

import (
	"context"
	"errors"
	"time"

	"github.com/vostoklab/workshop_backend/config"
	"github.com/vostoklab/workshop_backend/utils"
	"gorm.io/gorm"
)

// PolishingDetails records a hand-off to the polishing stage. One row per
// receipt; ReturnedAt is set when the item comes back.
type PolishingDetails struct {
	ReceiptId  int        `gorm:"primary_key" json:"receipt_id"`
	PolisherId int        `gorm:"not null" json:"polisher_id"`
	MetalType  string     `gorm:"size:50;not null" json:"metal_type"`
	Bracelet   bool       `gorm:"default:false" json:"bracelet"`
	Difficult  bool       `gorm:"default:false" json:"difficult"`
	Comment    string     `gorm:"type:text" json:"comment"`
	SentAt     time.Time  `gorm:"autoCreateTime" json:"sent_at"`
	ReturnedAt *time.Time `json:"returned_at"`
}

type NewPolishingDetails struct {
	ReceiptId  int    `json:"receipt_id" binding:"required"`
	PolisherId int    `json:"polisher_id" binding:"required"`
	MetalType  string `json:"metal_type" binding:"required"`
	Bracelet   bool   `json:"bracelet"`
	Difficult  bool   `json:"difficult"`
	Comment    string `json:"comment"`
}

func SendToPolishing(ctx context.Context, input *NewPolishingDetails) (*PolishingDetails, error) {
	db := config.GetDB()

	details := PolishingDetails{
		ReceiptId:  input.ReceiptId,
		PolisherId: input.PolisherId,
		MetalType:  input.MetalType,
		Bracelet:   input.Bracelet,
		Difficult:  input.Difficult,
		Comment:    input.Comment,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var polisher Employee
		if err := tx.First(&polisher, input.PolisherId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NotFoundError("employee %d not found", input.PolisherId)
			}
			return err
		}
		if err := tx.Create(&details).Error; err != nil {
			return err
		}
		return createHistory(tx, input.ReceiptId, EventSentToPolishing, map[string]interface{}{
			"polisher_id":   polisher.ID,
			"polisher_name": polisher.Name,
			"metal_type":    input.MetalType,
			"bracelet":      input.Bracelet,
			"difficult":     input.Difficult,
		})
	})
	if err != nil {
		if utils.KindOf(err) != utils.KindUnknown {
			return nil, err
		}
		return nil, utils.StorageError(err)
	}
	return &details, nil
}

func GetPolishingDetails(ctx context.Context, receiptId int) (*PolishingDetails, error) {
	db := config.GetDB()
	var result PolishingDetails

	err := db.WithContext(ctx).Where("receipt_id = ?", receiptId).First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFoundError("polishing details for receipt %d not found", receiptId)
		}
		return nil, utils.StorageError(err)
	}
	return &result, nil
}

func MarkPolishingReturned(ctx context.Context, receiptId int, at time.Time) error {
	db := config.GetDB()

	res := db.WithContext(ctx).Model(&PolishingDetails{}).
		Where("receipt_id = ?", receiptId).
		Update("returned_at", at)
	if res.Error != nil {
		return utils.StorageError(res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.NotFoundError("polishing details for receipt %d not found", receiptId)
	}
	return nil
}
