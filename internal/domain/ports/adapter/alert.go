package adapter

import "context"

// AdminAlerter is a fire-and-forget out-of-band notification channel for
// compensation events. Failures are logged and swallowed by callers; they must
// never fail the originating request.
type AdminAlerter interface {
	Alert(ctx context.Context, subject, body string) error
}
