package realtime

import (
	"testing"
	"time"
)

func TestBackoff_Sequence(t *testing.T) {
	// 退避序列单调不减且有界
	b := Backoff{Initial: time.Second, Max: 30 * time.Second, MaxAttempts: 10}

	prev := time.Duration(0)
	for attempt := 0; attempt <= 10; attempt++ {
		delay := b.Delay(attempt)
		if delay < prev {
			t.Errorf("Delay(%d)=%v decreased from %v", attempt, delay, prev)
		}
		if delay > b.Max {
			t.Errorf("Delay(%d)=%v exceeds max %v", attempt, delay, b.Max)
		}
		prev = delay
	}
}

func TestBackoff_ExactValues(t *testing.T) {
	b := Backoff{Initial: time.Second, Max: 30 * time.Second, MaxAttempts: 10}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second}, // 32s 截断到 max
		{6, 30 * time.Second},
	}

	for _, c := range cases {
		if got := b.Delay(c.attempt); got != c.want {
			t.Errorf("Delay(%d): expected %v, got %v", c.attempt, c.want, got)
		}
	}
}

func TestBackoff_NegativeAttempt(t *testing.T) {
	b := DefaultBackoff()
	if got := b.Delay(-1); got != b.Initial {
		t.Errorf("Delay(-1): expected %v, got %v", b.Initial, got)
	}
}

func TestBackoff_LargeAttemptDoesNotOverflow(t *testing.T) {
	b := Backoff{Initial: time.Second, Max: 30 * time.Second, MaxAttempts: 10}
	if got := b.Delay(200); got != b.Max {
		t.Errorf("Delay(200): expected %v, got %v", b.Max, got)
	}
}
