package retrieve

import "time"

// nextPollDelay is the poll-schedule transition function: each poll waits
// half again as long as the previous one, capped at max. The floor is the
// engine's configured initial delay. It is pure so the schedule can be
// tested without a server.
func nextPollDelay(current, max time.Duration) time.Duration {
	next := current + current/2
	if next > max {
		next = max
	}
	return next
}
