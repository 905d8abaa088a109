package workflow

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vostoklab/workshop_backend/models"
)

type fakeNotifier struct {
	sent map[int64][]string
	// failFor marks recipients whose sends always fail.
	failFor map[int64]bool
	failAll bool
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		sent:    map[int64][]string{},
		failFor: map[int64]bool{},
	}
}

func (f *fakeNotifier) Send(ctx context.Context, recipientId int64, text string) error {
	if f.failAll || f.failFor[recipientId] {
		return errors.New("telegram unreachable")
	}
	f.sent[recipientId] = append(f.sent[recipientId], text)
	return nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testDispatcher(store ReminderStore, n *fakeNotifier, recipients []int64, now time.Time) *ReminderDispatcher {
	d := NewReminderDispatcher(store, n, quietLogger(), recipients)
	d.Now = fixedClock(now)
	d.ResolveReceipt = func(ctx context.Context, receiptId int) (*models.Receipt, error) {
		return &models.Receipt{ID: receiptId, ReceiptNumber: "RN-42"}, nil
	}
	return d
}

func TestDispatchOnceSendsDueReminders(t *testing.T) {
	store := newFakeReminderStore()
	now := mustParse(t, "2025-01-02T10:00:00Z")
	if _, err := store.Insert(context.Background(), 7, models.ReminderKindDeadlineToday, now.Add(-time.Minute)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := store.Insert(context.Background(), 7, models.ReminderKindDeadline1h, now.Add(time.Hour)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	n := newFakeNotifier()
	d := testDispatcher(store, n, []int64{100, 200}, now)
	d.dispatchOnce(context.Background())

	if len(n.sent[100]) != 1 || len(n.sent[200]) != 1 {
		t.Fatalf("expected one message per recipient, got %d/%d", len(n.sent[100]), len(n.sent[200]))
	}
	if !strings.Contains(n.sent[100][0], "RN-42") {
		t.Fatalf("message missing receipt number: %q", n.sent[100][0])
	}
	// The future reminder stays pending.
	if got := len(store.active(7)); got != 1 {
		t.Fatalf("expected 1 reminder still active, got %d", got)
	}
}

func TestDispatchOnceIsMonotonic(t *testing.T) {
	store := newFakeReminderStore()
	now := mustParse(t, "2025-01-02T10:00:00Z")
	if _, err := store.Insert(context.Background(), 7, models.ReminderKindDeadlineToday, now.Add(-time.Minute)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	n := newFakeNotifier()
	d := testDispatcher(store, n, []int64{100}, now)
	d.dispatchOnce(context.Background())
	d.dispatchOnce(context.Background())

	if len(n.sent[100]) != 1 {
		t.Fatalf("reminder sent %d times, want 1", len(n.sent[100]))
	}
}

func TestDispatchOnceLeavesReminderPendingWhenAllSendsFail(t *testing.T) {
	store := newFakeReminderStore()
	now := mustParse(t, "2025-01-02T10:00:00Z")
	reminder, err := store.Insert(context.Background(), 7, models.ReminderKindDeadline1h, now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	n := newFakeNotifier()
	n.failAll = true
	d := testDispatcher(store, n, []int64{100, 200}, now)
	d.dispatchOnce(context.Background())

	if store.reminders[0].SentAt != nil {
		t.Fatalf("reminder %d marked sent despite all sends failing", reminder.ID)
	}

	// After recovery the next tick delivers it.
	n.failAll = false
	d.dispatchOnce(context.Background())
	if store.reminders[0].SentAt == nil {
		t.Fatal("reminder not marked sent after recovery")
	}
	if len(n.sent[100]) != 1 {
		t.Fatalf("expected 1 delivery after recovery, got %d", len(n.sent[100]))
	}
}

func TestDispatchOncePartialSuccessMarksSent(t *testing.T) {
	store := newFakeReminderStore()
	now := mustParse(t, "2025-01-02T10:00:00Z")
	if _, err := store.Insert(context.Background(), 7, models.ReminderKindDeadline1h, now.Add(-time.Minute)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	n := newFakeNotifier()
	n.failFor[200] = true
	d := testDispatcher(store, n, []int64{100, 200}, now)
	d.dispatchOnce(context.Background())

	if store.reminders[0].SentAt == nil {
		t.Fatal("reminder not marked sent after partial success")
	}
	if len(n.sent[100]) != 1 {
		t.Fatalf("expected delivery to recipient 100, got %d", len(n.sent[100]))
	}
}

func TestDispatchOnceIsolatesReminderFailures(t *testing.T) {
	store := newFakeReminderStore()
	now := mustParse(t, "2025-01-02T10:00:00Z")
	if _, err := store.Insert(context.Background(), 7, models.ReminderKindDeadlineToday, now.Add(-2*time.Minute)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := store.Insert(context.Background(), 8, models.ReminderKindDeadline1h, now.Add(-time.Minute)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	n := newFakeNotifier()
	d := testDispatcher(store, n, []int64{100}, now)
	// Receipt lookup for the first reminder fails; delivery still proceeds
	// with the raw id and the second reminder is unaffected.
	d.ResolveReceipt = func(ctx context.Context, receiptId int) (*models.Receipt, error) {
		if receiptId == 7 {
			return nil, errors.New("receipt lookup failed")
		}
		return &models.Receipt{ID: receiptId, ReceiptNumber: "RN-8"}, nil
	}
	d.dispatchOnce(context.Background())

	if len(n.sent[100]) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(n.sent[100]))
	}
	if !strings.Contains(n.sent[100][0], "#7") {
		t.Fatalf("fallback label missing: %q", n.sent[100][0])
	}
	if !strings.Contains(n.sent[100][1], "RN-8") {
		t.Fatalf("resolved label missing: %q", n.sent[100][1])
	}
}

func TestDispatchOnceSkipsCancelledReminders(t *testing.T) {
	store := newFakeReminderStore()
	now := mustParse(t, "2025-01-02T10:00:00Z")
	if _, err := store.Insert(context.Background(), 7, models.ReminderKindDeadline1h, now.Add(-time.Minute)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := store.CancelActive(context.Background(), 7); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	n := newFakeNotifier()
	d := testDispatcher(store, n, []int64{100}, now)
	d.dispatchOnce(context.Background())

	if len(n.sent[100]) != 0 {
		t.Fatalf("cancelled reminder delivered %d times", len(n.sent[100]))
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	store := newFakeReminderStore()
	n := newFakeNotifier()
	d := testDispatcher(store, n, nil, mustParse(t, "2025-01-02T10:00:00Z"))
	d.PollInterval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after cancel")
	}
}

func TestLockTTLOutlivesPollInterval(t *testing.T) {
	d := testDispatcher(newFakeReminderStore(), newFakeNotifier(), nil, time.Now())

	d.PollInterval = 60 * time.Second
	if got := d.lockTTL(); got <= d.PollInterval {
		t.Fatalf("lockTTL = %v, must exceed poll interval %v", got, d.PollInterval)
	}

	// A very short interval still gets a sane floor.
	d.PollInterval = time.Second
	if got := d.lockTTL(); got < time.Minute {
		t.Fatalf("lockTTL = %v, want at least 1m", got)
	}
}

func TestReminderTextFallback(t *testing.T) {
	if got := reminderText("unknown_kind", "RN-1"); !strings.Contains(got, "RN-1") {
		t.Fatalf("fallback text missing label: %q", got)
	}
}
