package storage

import "time"

// SetRetryDelaysForTesting shrinks the retry backoff so failure-path tests
// run fast.  It returns a function restoring the real delays.
func SetRetryDelaysForTesting() func() {
	savedInitial, savedMax := initialDelay, maximumDelay
	initialDelay = time.Millisecond
	maximumDelay = 4 * time.Millisecond
	return func() {
		initialDelay, maximumDelay = savedInitial, savedMax
	}
}
