package workflow

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vostoklab/workshop_backend/models"
	"github.com/vostoklab/workshop_backend/notifier"
)

const dispatcherLockKey = "reminder_dispatcher:tick"

var reminderTexts = map[string]string{
	models.ReminderKindDeadlineToday: "📅 Deadline today for receipt #%s",
	models.ReminderKindDeadline1h:    "⏰ Deadline in 1 hour for receipt #%s",
}

// ReminderDispatcher polls the reminder store for due, unsent, uncancelled
// reminders and delivers them to the configured recipients. A reminder is
// marked sent only when at least one recipient got it; otherwise it stays
// pending and the next tick retries it. Delivery is at-least-once.
type ReminderDispatcher struct {
	Store      ReminderStore
	Notifier   notifier.Notifier
	Logger     *logrus.Logger
	Recipients []int64
	WorkerID   string

	PollInterval time.Duration
	SendTimeout  time.Duration

	// Locker, when set, makes the tick single-sender across replicas.
	// Best-effort: a lost lock skips the tick, it never errors.
	Locker *redislock.Client

	// ResolveReceipt is a cosmetic lookup for the receipt number; on failure
	// the raw id is used and delivery proceeds.
	ResolveReceipt func(ctx context.Context, receiptId int) (*models.Receipt, error)

	Now func() time.Time
}

func NewReminderDispatcher(store ReminderStore, n notifier.Notifier, logger *logrus.Logger, recipients []int64) *ReminderDispatcher {
	return &ReminderDispatcher{
		Store:          store,
		Notifier:       n,
		Logger:         logger,
		Recipients:     recipients,
		WorkerID:       uuid.NewString(),
		PollInterval:   pollIntervalFromEnv(),
		SendTimeout:    10 * time.Second,
		ResolveReceipt: models.GetReceipt,
		Now:            time.Now,
	}
}

func pollIntervalFromEnv() time.Duration {
	v := strings.TrimSpace(os.Getenv("REMINDER_POLL_INTERVAL_SECONDS"))
	if v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return 60 * time.Second
}

func (d *ReminderDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.dispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

// lockTTL outlives the poll interval so a slow tick keeps the lock instead
// of letting a second replica dispatch the same batch.
func (d *ReminderDispatcher) lockTTL() time.Duration {
	ttl := 2 * d.PollInterval
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return ttl
}

func (d *ReminderDispatcher) dispatchOnce(ctx context.Context) {
	// Shutdown cancels ctx between ticks only; an in-flight tick always
	// finishes its batch.
	tickCtx := context.WithoutCancel(ctx)

	if d.Locker != nil {
		lock, err := d.Locker.Obtain(tickCtx, dispatcherLockKey, d.lockTTL(), nil)
		if err != nil {
			// Another replica holds the tick.
			return
		}
		defer lock.Release(tickCtx)
	}

	now := d.Now()
	due, err := d.Store.QueryDue(tickCtx, now)
	if err != nil {
		d.Logger.WithFields(logrus.Fields{
			"module": "ReminderDispatcher",
			"worker": d.WorkerID,
		}).Error("query due reminders failed: " + err.Error())
		return
	}

	for _, reminder := range due {
		d.deliver(tickCtx, reminder)
	}
}

// deliver sends one reminder to every recipient. Failures are isolated per
// reminder and per recipient.
func (d *ReminderDispatcher) deliver(ctx context.Context, reminder models.Reminder) {
	label := strconv.Itoa(reminder.ReceiptId)
	if receipt, err := d.ResolveReceipt(ctx, reminder.ReceiptId); err == nil {
		label = receipt.ReceiptNumber
	} else {
		d.Logger.WithFields(logrus.Fields{
			"module":      "ReminderDispatcher",
			"reminder_id": reminder.ID,
			"receipt_id":  reminder.ReceiptId,
		}).Warn("receipt lookup failed, using raw id: " + err.Error())
	}

	text := reminderText(reminder.Kind, label)

	sent := 0
	for _, recipient := range d.Recipients {
		sendCtx, cancel := context.WithTimeout(ctx, d.SendTimeout)
		err := d.Notifier.Send(sendCtx, recipient, text)
		cancel()
		if err != nil {
			d.Logger.WithFields(logrus.Fields{
				"module":      "ReminderDispatcher",
				"reminder_id": reminder.ID,
				"recipient":   recipient,
			}).Error("send failed: " + err.Error())
			continue
		}
		sent++
	}

	if sent == 0 {
		// Every recipient failed (or none configured); leave the reminder
		// pending so the next tick retries it.
		d.Logger.WithFields(logrus.Fields{
			"module":      "ReminderDispatcher",
			"reminder_id": reminder.ID,
		}).Warn("no recipient reached, reminder left pending")
		return
	}

	if err := d.Store.MarkSent(ctx, reminder.ID, d.Now()); err != nil {
		d.Logger.WithFields(logrus.Fields{
			"module":      "ReminderDispatcher",
			"reminder_id": reminder.ID,
		}).Error("mark sent failed: " + err.Error())
	}
}

func reminderText(kind string, receiptLabel string) string {
	template, ok := reminderTexts[kind]
	if !ok {
		template = "🔔 Reminder for receipt #%s"
	}
	return fmt.Sprintf(template, receiptLabel)
}
