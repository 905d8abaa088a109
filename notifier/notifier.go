// Package notifier delivers reminder texts to chat recipients. Failures are
// reported per recipient, never aggregated, so the dispatcher can count
// partial successes.
package notifier

import "context"

type Notifier interface {
	// Send delivers text to one recipient. The call is bounded by the
	// implementation's timeout; a slow recipient must not delay others.
	Send(ctx context.Context, recipientId int64, text string) error
}
