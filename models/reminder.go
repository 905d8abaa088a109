package models

import (
	"context"
	"time"

	"github.com/vostoklab/workshop_backend/utils"
	"gorm.io/gorm"
)

// Reminder is a scheduled one-shot deadline notification. Rows are never
// deleted: a superseded reminder is soft-cancelled so history stays intact.
// At most one active (unsent, uncancelled) reminder per (receipt, kind)
// exists at a time, enforced by cancel-before-insert inside one transaction.
type Reminder struct {
	ID          int        `gorm:"primary_key" json:"id"`
	ReceiptId   int        `gorm:"index;not null" json:"receipt_id"`
	Kind        string     `gorm:"size:50;not null;index:idx_reminders_due" json:"kind"`
	ScheduledAt time.Time  `gorm:"not null;index:idx_reminders_due" json:"scheduled_at"`
	SentAt      *time.Time `json:"sent_at"`
	IsCancelled bool       `gorm:"default:false" json:"is_cancelled"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// Active reports whether the reminder is still eligible for delivery.
func (r Reminder) Active() bool {
	return r.SentAt == nil && !r.IsCancelled
}

// ReminderDB is the gorm-backed reminder store. Bind it to a transaction
// handle to make cancel+insert atomic with the surrounding deadline change.
type ReminderDB struct {
	DB *gorm.DB
}

func NewReminderDB(db *gorm.DB) *ReminderDB {
	return &ReminderDB{DB: db}
}

// CancelActive soft-cancels every active reminder of the receipt. Zero
// matches is not an error.
func (s *ReminderDB) CancelActive(ctx context.Context, receiptId int) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&Reminder{}).
		Where("receipt_id = ?", receiptId).
		Where("sent_at IS NULL").
		Where("is_cancelled = ?", false).
		Update("is_cancelled", true)
	if res.Error != nil {
		return 0, utils.StorageError(res.Error)
	}
	return res.RowsAffected, nil
}

func (s *ReminderDB) Insert(ctx context.Context, receiptId int, kind string, scheduledAt time.Time) (*Reminder, error) {
	reminder := Reminder{
		ReceiptId:   receiptId,
		Kind:        kind,
		ScheduledAt: scheduledAt,
	}
	if err := s.DB.WithContext(ctx).Create(&reminder).Error; err != nil {
		return nil, utils.StorageError(err)
	}
	return &reminder, nil
}

// QueryDue returns reminders whose time has come and that are still active.
// Cancellation is enforced here, at query time: once a reminder is cancelled
// it simply stops being selected.
func (s *ReminderDB) QueryDue(ctx context.Context, now time.Time) ([]Reminder, error) {
	var results []Reminder
	err := s.DB.WithContext(ctx).
		Where("scheduled_at <= ?", now).
		Where("sent_at IS NULL").
		Where("is_cancelled = ?", false).
		Order("scheduled_at ASC").
		Find(&results).Error
	if err != nil {
		return nil, utils.StorageError(err)
	}
	return results, nil
}

func (s *ReminderDB) MarkSent(ctx context.Context, reminderId int, at time.Time) error {
	err := s.DB.WithContext(ctx).Model(&Reminder{}).
		Where("id = ?", reminderId).
		Update("sent_at", at).Error
	if err != nil {
		return utils.StorageError(err)
	}
	return nil
}

// GetRemindersByReceipt returns every reminder row of a receipt, newest first.
func GetRemindersByReceipt(ctx context.Context, db *gorm.DB, receiptId int) ([]Reminder, error) {
	var results []Reminder
	err := db.WithContext(ctx).
		Where("receipt_id = ?", receiptId).
		Order("created_at DESC").
		Find(&results).Error
	if err != nil {
		return nil, utils.StorageError(err)
	}
	return results, nil
}
