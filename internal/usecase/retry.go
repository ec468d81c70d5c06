package usecase

import "time"

// RetryPolicy is a bounded retry schedule for background-driven operations:
// a failed attempt either schedules the next try after Interval or, at
// MaxAttempts, escalates to the caller's terminal transition. Counters live in
// the operation's own row, not in an external queue.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// Next reports the outcome of one more failure on top of attemptsSoFar:
// the new attempt count, when to try again, and whether the policy is now
// exhausted (nextAt is zero in that case).
func (p RetryPolicy) Next(attemptsSoFar int, now time.Time) (attempts int, nextAt time.Time, exhausted bool) {
	attempts = attemptsSoFar + 1
	if attempts >= p.MaxAttempts {
		return attempts, time.Time{}, true
	}
	return attempts, now.Add(p.Interval), false
}
