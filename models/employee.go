package models

import (
	"context"
	"errors"
	"time"

	"github.com/vostoklab/workshop_backend/config"
	"github.com/vostoklab/workshop_backend/utils"
	"gorm.io/gorm"
)

type Employee struct {
	ID               int       `gorm:"primary_key" json:"id"`
	Name             string    `gorm:"size:200;not null" json:"name" binding:"required"`
	Role             string    `gorm:"size:50;not null;default:master" json:"role"`
	TelegramId       *int64    `gorm:"uniqueIndex" json:"telegram_id"`
	TelegramUsername string    `gorm:"size:100" json:"telegram_username"`
	IsActive         bool      `gorm:"default:true" json:"is_active"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewEmployee struct {
	Name             string `json:"name" binding:"required"`
	Role             string `json:"role"`
	TelegramId       *int64 `json:"telegram_id"`
	TelegramUsername string `json:"telegram_username"`
}

func GetEmployee(ctx context.Context, id int) (*Employee, error) {
	db := config.GetDB()
	var result Employee

	err := db.WithContext(ctx).First(&result, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFoundError("employee %d not found", id)
		}
		return nil, utils.StorageError(err)
	}
	return &result, nil
}

// GetEmployees lists employees, optionally narrowed to active ones and to a
// single role. The return flow's responsible-party keyboard is built from the
// role-filtered list.
func GetEmployees(ctx context.Context, activeOnly bool, role string) ([]*Employee, error) {
	db := config.GetDB()
	var results []*Employee

	dbCtx := db.WithContext(ctx)
	if activeOnly {
		dbCtx = dbCtx.Where("is_active = ?", true)
	}
	if role != "" {
		dbCtx = dbCtx.Where("role = ?", role)
	}
	err := dbCtx.Order("name ASC").Find(&results).Error
	if err != nil {
		return nil, utils.StorageError(err)
	}
	return results, nil
}

func CreateEmployee(ctx context.Context, input *NewEmployee) (*Employee, error) {
	db := config.GetDB()

	role := input.Role
	if role == "" {
		role = RoleMaster
	}
	employee := Employee{
		Name:             input.Name,
		Role:             role,
		TelegramId:       input.TelegramId,
		TelegramUsername: input.TelegramUsername,
		IsActive:         true,
	}
	if err := db.WithContext(ctx).Create(&employee).Error; err != nil {
		return nil, utils.StorageError(err)
	}
	return &employee, nil
}

func SetEmployeeActive(ctx context.Context, id int, active bool) (*Employee, error) {
	db := config.GetDB()

	employee, err := GetEmployee(ctx, id)
	if err != nil {
		return nil, err
	}
	err = db.WithContext(ctx).Model(&Employee{}).
		Where("id = ?", id).
		Update("is_active", active).Error
	if err != nil {
		return nil, utils.StorageError(err)
	}
	employee.IsActive = active
	return employee, nil
}
