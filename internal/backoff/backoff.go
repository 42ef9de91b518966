package backoff

import "time"

// Backoff computes the wait before the next redelivery given the number of
// retries already performed (0-based).
type Backoff interface {
	Duration(retries int) time.Duration
}

// ExponentialBackoff waits Interval * Base^retries.
type ExponentialBackoff struct {
	Interval time.Duration
	Base     int
}

var _ Backoff = &ExponentialBackoff{}

func (b *ExponentialBackoff) Duration(retries int) time.Duration {
	d := b.Interval
	for i := 0; i < retries; i++ {
		d *= time.Duration(b.Base)
	}
	return d
}

// ConstantBackoff waits Interval regardless of the retry count.
type ConstantBackoff struct {
	Interval time.Duration
}

var _ Backoff = &ConstantBackoff{}

func (b *ConstantBackoff) Duration(retries int) time.Duration {
	return b.Interval
}
