package models

import (
	"context"
	"errors"
	"time"

	"github.com/vostoklab/workshop_backend/config"
	"github.com/vostoklab/workshop_backend/utils"
	"gorm.io/gorm"
)

// OperationType is reference data for the workflow stages (assembly,
// mechanism, polishing).
type OperationType struct {
	ID   int    `gorm:"primary_key" json:"id"`
	Code string `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Name string `gorm:"size:200;not null" json:"name"`
}

// Operation is a completed workflow step on a receipt.
type Operation struct {
	ID              int       `gorm:"primary_key" json:"id"`
	ReceiptId       int       `gorm:"index;not null" json:"receipt_id"`
	OperationTypeId int       `gorm:"not null" json:"operation_type_id"`
	EmployeeId      int       `gorm:"not null" json:"employee_id"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewOperation struct {
	ReceiptId       int `json:"receipt_id" binding:"required"`
	OperationTypeId int `json:"operation_type_id" binding:"required"`
	EmployeeId      int `json:"employee_id" binding:"required"`
}

func CreateOperation(ctx context.Context, input *NewOperation) (*Operation, error) {
	db := config.GetDB()

	operation := Operation{
		ReceiptId:       input.ReceiptId,
		OperationTypeId: input.OperationTypeId,
		EmployeeId:      input.EmployeeId,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var opType OperationType
		if err := tx.First(&opType, input.OperationTypeId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NotFoundError("operation type %d not found", input.OperationTypeId)
			}
			return err
		}
		var employee Employee
		if err := tx.First(&employee, input.EmployeeId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NotFoundError("employee %d not found", input.EmployeeId)
			}
			return err
		}
		if err := tx.Create(&operation).Error; err != nil {
			return err
		}
		return createHistory(tx, input.ReceiptId, EventOperationAdded, map[string]interface{}{
			"operation_id":  operation.ID,
			"type_code":     opType.Code,
			"employee_id":   employee.ID,
			"employee_name": employee.Name,
		})
	})
	if err != nil {
		if utils.KindOf(err) != utils.KindUnknown {
			return nil, err
		}
		return nil, utils.StorageError(err)
	}
	return &operation, nil
}

func GetOperationsByReceipt(ctx context.Context, receiptId int) ([]*Operation, error) {
	db := config.GetDB()
	var results []*Operation

	err := db.WithContext(ctx).
		Where("receipt_id = ?", receiptId).
		Order("created_at DESC").
		Find(&results).Error
	if err != nil {
		return nil, utils.StorageError(err)
	}
	return results, nil
}
