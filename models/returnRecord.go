package models

import (
	"context"
	"errors"
	"time"

	"github.com/vostoklab/workshop_backend/config"
	"github.com/vostoklab/workshop_backend/utils"
	"gorm.io/gorm"
)

// Return records that an item came back from quality inspection, with one
// or more reasons.
type Return struct {
	ID        int                `gorm:"primary_key" json:"id"`
	ReceiptId int                `gorm:"index;not null" json:"receipt_id"`
	Comment   string             `gorm:"type:text" json:"comment"`
	CreatedAt time.Time          `gorm:"autoCreateTime" json:"created_at"`
	Reasons   []ReturnReasonLink `gorm:"foreignKey:ReturnId" json:"reasons"`
}

// ReturnReason is read-only reference data, seeded at migration time.
type ReturnReason struct {
	ID      int    `gorm:"primary_key" json:"id"`
	Code    string `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Name    string `gorm:"size:200;not null" json:"name"`
	Affects string `gorm:"size:50;not null" json:"affects"`
}

// ReturnReasonLink ties a return to one reason. GuiltyEmployeeId is set only
// when the reason's code requires attribution.
type ReturnReasonLink struct {
	ID               int  `gorm:"primary_key" json:"id"`
	ReturnId         int  `gorm:"index;not null" json:"return_id"`
	ReasonId         int  `gorm:"not null" json:"reason_id"`
	GuiltyEmployeeId *int `json:"guilty_employee_id"`
}

type NewReturnReasonLink struct {
	ReasonId         int  `json:"reason_id" binding:"required"`
	GuiltyEmployeeId *int `json:"guilty_employee_id"`
}

type NewReturn struct {
	ReceiptId int                   `json:"receipt_id" binding:"required"`
	Comment   string                `json:"comment"`
	Reasons   []NewReturnReasonLink `json:"reasons" binding:"required,min=1,dive"`
}

func GetReturnReasons(ctx context.Context) ([]*ReturnReason, error) {
	db := config.GetDB()
	var results []*ReturnReason

	err := db.WithContext(ctx).Order("id ASC").Find(&results).Error
	if err != nil {
		return nil, utils.StorageError(err)
	}
	return results, nil
}

// CreateReturn creates the return, its reason links and the return_created
// audit row in one transaction. Partial returns are never observable.
func CreateReturn(ctx context.Context, input *NewReturn) (*Return, error) {
	if len(input.Reasons) == 0 {
		return nil, utils.ValidationError("a return needs at least one reason")
	}

	db := config.GetDB()

	returnRecord := Return{
		ReceiptId: input.ReceiptId,
		Comment:   input.Comment,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var receipt Receipt
		if err := tx.First(&receipt, input.ReceiptId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NotFoundError("receipt %d not found", input.ReceiptId)
			}
			return err
		}

		if err := tx.Create(&returnRecord).Error; err != nil {
			return err
		}

		reasonsPayload := make([]map[string]interface{}, 0, len(input.Reasons))
		for _, link := range input.Reasons {
			var reason ReturnReason
			if err := tx.First(&reason, link.ReasonId).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return utils.NotFoundError("return reason %d not found", link.ReasonId)
				}
				return err
			}
			if link.GuiltyEmployeeId != nil && reason.Code != AttributionReasonCode {
				return utils.ValidationError("reason %s does not take a responsible employee", reason.Code)
			}

			reasonLink := ReturnReasonLink{
				ReturnId:         returnRecord.ID,
				ReasonId:         link.ReasonId,
				GuiltyEmployeeId: link.GuiltyEmployeeId,
			}
			if err := tx.Create(&reasonLink).Error; err != nil {
				return err
			}
			returnRecord.Reasons = append(returnRecord.Reasons, reasonLink)

			entry := map[string]interface{}{
				"reason_id":   reason.ID,
				"reason_code": reason.Code,
				"reason_name": reason.Name,
				"affects":     reason.Affects,
			}
			if link.GuiltyEmployeeId != nil {
				var guilty Employee
				if err := tx.First(&guilty, *link.GuiltyEmployeeId).Error; err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						return utils.NotFoundError("employee %d not found", *link.GuiltyEmployeeId)
					}
					return err
				}
				entry["guilty_employee_id"] = guilty.ID
				entry["guilty_employee_name"] = guilty.Name
			}
			reasonsPayload = append(reasonsPayload, entry)
		}

		return createHistory(tx, input.ReceiptId, EventReturnCreated, map[string]interface{}{
			"return_id": returnRecord.ID,
			"comment":   input.Comment,
			"reasons":   reasonsPayload,
		})
	})
	if err != nil {
		if utils.KindOf(err) != utils.KindUnknown {
			return nil, err
		}
		return nil, utils.StorageError(err)
	}
	return &returnRecord, nil
}

func GetReturn(ctx context.Context, id int) (*Return, error) {
	db := config.GetDB()
	var result Return

	err := db.WithContext(ctx).Preload("Reasons").First(&result, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFoundError("return %d not found", id)
		}
		return nil, utils.StorageError(err)
	}
	return &result, nil
}

func GetReturnsByReceipt(ctx context.Context, receiptId int) ([]*Return, error) {
	db := config.GetDB()
	var results []*Return

	err := db.WithContext(ctx).
		Preload("Reasons").
		Where("receipt_id = ?", receiptId).
		Order("created_at DESC").
		Find(&results).Error
	if err != nil {
		return nil, utils.StorageError(err)
	}
	return results, nil
}
