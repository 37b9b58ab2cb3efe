package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff_SuccessAfterRetries(t *testing.T) {
	b := &Backoff{
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   1.5,
		MaxAttempts:  10,
	}
	calls := 0

	err := b.Do(context.Background(), func(attempt int) error {
		calls++
		if attempt < 3 {
			return fmt.Errorf("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestBackoff_PermanentError(t *testing.T) {
	calls := 0
	err := AcceptBackoff().Do(context.Background(), func(_ int) error {
		calls++
		return Permanent(fmt.Errorf("listener closed"))
	})

	require.EqualError(t, err, "listener closed")
	assert.Equal(t, 1, calls, "permanent error should stop after one call")
}

func TestBackoff_MaxAttempts(t *testing.T) {
	b := &Backoff{InitialDelay: time.Millisecond, MaxAttempts: 3}
	calls := 0

	err := b.Do(context.Background(), func(_ int) error {
		calls++
		return fmt.Errorf("always fails")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries (3) exceeded")
	assert.Equal(t, 3, calls)
}

func TestBackoff_ContextCancelled(t *testing.T) {
	b := &Backoff{InitialDelay: 5 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := b.Do(ctx, func(_ int) error { return fmt.Errorf("fail") })

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBackoff_Delay(t *testing.T) {
	b := AcceptBackoff()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 5 * time.Millisecond},
		{1, 5 * time.Millisecond},
		{2, 10 * time.Millisecond},
		{3, 20 * time.Millisecond},
		{8, 640 * time.Millisecond},
		{9, time.Second},
		{50, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestBackoff_ZeroValueDefaults(t *testing.T) {
	var b Backoff
	assert.Equal(t, 5*time.Millisecond, b.Delay(1))
	assert.Equal(t, time.Second, b.Delay(100))
}

func TestPermanent_Nil(t *testing.T) {
	assert.Nil(t, Permanent(nil))
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(Permanent(fmt.Errorf("x"))))
	assert.True(t, IsPermanent(fmt.Errorf("wrapped: %w", Permanent(fmt.Errorf("x")))))
	assert.False(t, IsPermanent(fmt.Errorf("x")))
	assert.False(t, IsPermanent(nil))
}

func TestJitter_Range(t *testing.T) {
	d := 100 * time.Millisecond
	lower := time.Duration(float64(d) * 0.74)
	upper := time.Duration(float64(d) * 1.26)
	for i := 0; i < 100; i++ {
		j := addJitter(d)
		if j < lower || j > upper {
			t.Errorf("jitter %v out of expected range [%v, %v]", j, lower, upper)
		}
	}
}
