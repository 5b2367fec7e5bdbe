package queue

import "time"

// backoffTable is indexed by the attempt count of the failed run. Values past
// the end of the table use the last entry.
var backoffTable = []time.Duration{
	0,
	1 * time.Second,
	3 * time.Second,
	8 * time.Second,
	20 * time.Second,
	45 * time.Second,
}

// Backoff returns the delay before a task that has failed attempts times
// becomes eligible again. It is deterministic.
func Backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts >= len(backoffTable) {
		return backoffTable[len(backoffTable)-1]
	}
	return backoffTable[attempts]
}
