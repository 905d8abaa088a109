package models

import (
	"testing"
	"time"
)

func TestReminderActive(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name     string
		reminder Reminder
		want     bool
	}{
		{"pending", Reminder{ScheduledAt: now}, true},
		{"sent", Reminder{ScheduledAt: now, SentAt: &now}, false},
		{"cancelled", Reminder{ScheduledAt: now, IsCancelled: true}, false},
		{"sent and cancelled", Reminder{ScheduledAt: now, SentAt: &now, IsCancelled: true}, false},
	}
	for _, tc := range cases {
		if got := tc.reminder.Active(); got != tc.want {
			t.Fatalf("%s: Active() = %v, want %v", tc.name, got, tc.want)
		}
	}
}
