package realtime

import "time"

// Backoff 指数退避参数
// delay = min(Initial * 2^attempt, Max)，尝试 MaxAttempts 次后放弃
type Backoff struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int
}

// DefaultBackoff 默认退避参数
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:     time.Second,
		Max:         30 * time.Second,
		MaxAttempts: 8,
	}
}

// Delay 第 attempt 次（从0起）重试前的等待时间
// 序列单调不减且不超过 Max
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := b.Initial
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= b.Max {
			return b.Max
		}
	}
	if delay > b.Max {
		return b.Max
	}
	return delay
}
