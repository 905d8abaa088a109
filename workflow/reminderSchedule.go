package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/vostoklab/workshop_backend/models"
	"github.com/vostoklab/workshop_backend/utils"
	"gorm.io/gorm"
)

// ReminderStore is the slice of reminder persistence the scheduler and the
// dispatcher need. models.ReminderDB implements it against gorm; tests use
// in-memory fakes.
type ReminderStore interface {
	CancelActive(ctx context.Context, receiptId int) (int64, error)
	Insert(ctx context.Context, receiptId int, kind string, scheduledAt time.Time) (*models.Reminder, error)
	QueryDue(ctx context.Context, now time.Time) ([]models.Reminder, error)
	MarkSent(ctx context.Context, reminderId int, at time.Time) error
}

// Hour of day (in the deadline's location) for the same-day reminder.
const deadlineDayReminderHour = 10

type ReminderCandidate struct {
	Kind string
	At   time.Time
}

// ReminderCandidates computes the reminder times for a deadline:
// deadline_today at 10:00 on the deadline's calendar day and deadline_1h
// exactly one hour before the deadline.
func ReminderCandidates(deadline time.Time) []ReminderCandidate {
	dayAt := time.Date(deadline.Year(), deadline.Month(), deadline.Day(),
		deadlineDayReminderHour, 0, 0, 0, deadline.Location())
	return []ReminderCandidate{
		{Kind: models.ReminderKindDeadlineToday, At: dayAt},
		{Kind: models.ReminderKindDeadline1h, At: deadline.Add(-time.Hour)},
	}
}

// Scheduler keeps scheduled reminders consistent with a receipt's deadline.
// It never retries internally; storage errors propagate to the caller.
type Scheduler struct {
	Store ReminderStore
	Now   func() time.Time
}

func NewScheduler(store ReminderStore) *Scheduler {
	return &Scheduler{
		Store: store,
		Now:   time.Now,
	}
}

// Reschedule cancels every active reminder of the receipt, then inserts
// fresh ones for newDeadline. Candidates whose time is not strictly in the
// future are silently dropped. A nil deadline just cancels.
//
// Bind Store to the caller's transaction so the dispatcher never observes
// old and new reminders active at once.
func (s *Scheduler) Reschedule(ctx context.Context, receiptId int, newDeadline *time.Time) error {
	if _, err := s.Store.CancelActive(ctx, receiptId); err != nil {
		return err
	}
	if newDeadline == nil {
		return nil
	}

	now := s.Now()
	for _, candidate := range ReminderCandidates(*newDeadline) {
		if !candidate.At.After(now) {
			continue
		}
		if _, err := s.Store.Insert(ctx, receiptId, candidate.Kind, candidate.At); err != nil {
			return err
		}
	}
	return nil
}

// ChangeDeadline updates the receipt's deadline, writes the deadline_changed
// audit row and reschedules the reminders, all in one transaction. A failed
// reschedule rolls the whole change back, so the reminder set never ends up
// half-updated.
func ChangeDeadline(ctx context.Context, db *gorm.DB, receiptId int, newDeadline *time.Time) (*models.Receipt, error) {
	var receipt models.Receipt
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&receipt, receiptId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NotFoundError("receipt %d not found", receiptId)
			}
			return err
		}
		if err := models.SetReceiptDeadline(tx, &receipt, newDeadline); err != nil {
			return err
		}
		return NewScheduler(models.NewReminderDB(tx)).Reschedule(ctx, receiptId, newDeadline)
	})
	if err != nil {
		if utils.KindOf(err) != utils.KindUnknown {
			return nil, err
		}
		return nil, utils.StorageError(err)
	}
	return &receipt, nil
}
