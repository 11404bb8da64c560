package port

import "context"

// Notifier delivers user-facing notices. Delivery is best effort: the
// transfer engine logs and swallows failures, it never aborts on them.
type Notifier interface {
	Notify(ctx context.Context, userID, kind, title, message, actionURL string) error
}
