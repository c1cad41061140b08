package transaction

import (
	"time"

	"github.com/artpar/billgate/domain/calendar"
)

// RetryPattern selects the backoff curve for automatic retries.
type RetryPattern string

const (
	RetryDaily       RetryPattern = "daily"
	RetryExponential RetryPattern = "exponential"
	RetryFibonacci   RetryPattern = "fibonacci"
)

// Valid reports whether p is a known pattern.
func (p RetryPattern) Valid() bool {
	switch p {
	case RetryDaily, RetryExponential, RetryFibonacci:
		return true
	}
	return false
}

// Backoff returns the wait before retry number n (0-based count of
// consecutive automatic retries so far): daily waits one day, exponential
// 2^n days, fibonacci fib(n) days. Unknown patterns fall back to daily.
func Backoff(p RetryPattern, n int) time.Duration {
	if n < 0 {
		n = 0
	}
	var days int64
	switch p {
	case RetryExponential:
		days = 1 << uint(n)
	case RetryFibonacci:
		days = fibonacci(n)
	default:
		days = 1
	}
	return time.Duration(days) * calendar.OneDay
}

// NextRetryAt returns the earliest moment an automatic retry of a
// transaction created at createdAt is due.
func NextRetryAt(createdAt time.Time, p RetryPattern, retries int) time.Time {
	return createdAt.Add(Backoff(p, retries))
}

// fibonacci computes the nth Fibonacci number iteratively. The recursive
// form blows up exponentially for the retry counts providers configure.
func fibonacci(n int) int64 {
	a, b := int64(0), int64(1)
	for i := 0; i < n; i++ {
		a, b = b, a+b
	}
	return a
}
