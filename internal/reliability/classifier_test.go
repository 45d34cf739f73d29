package reliability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{404, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsRetryableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestExponentialBackoffCap(t *testing.T) {
	base := 100 * time.Millisecond
	capDur := 700 * time.Millisecond
	if got := ExponentialBackoff(0, base, capDur); got != base {
		t.Fatalf("attempt 0 = %v, want %v", got, base)
	}
	if got := ExponentialBackoff(2, base, capDur); got != 400*time.Millisecond {
		t.Fatalf("attempt 2 = %v, want %v", got, 400*time.Millisecond)
	}
	if got := ExponentialBackoff(10, base, capDur); got != capDur {
		t.Fatalf("attempt 10 = %v, want %v", got, capDur)
	}
}

func TestStoreErrorWrapsBoth(t *testing.T) {
	driverErr := errors.New("connection refused")
	err := StoreError("append answer", driverErr)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("errors.Is(err, ErrStoreUnavailable) = false")
	}
	if !errors.Is(err, driverErr) {
		t.Fatalf("errors.Is(err, driverErr) = false")
	}
	if !IsRetryable(err) {
		t.Fatalf("IsRetryable(store error) = false, want true")
	}
	if StoreError("noop", nil) != nil {
		t.Fatalf("StoreError(nil) should be nil")
	}
	if again := StoreError("outer", err); again != err {
		t.Fatalf("StoreError should not double wrap")
	}
}

func TestIsRetryableClassifiesContext(t *testing.T) {
	if IsRetryable(context.Canceled) {
		t.Fatalf("IsRetryable(context.Canceled) = true, want false")
	}
	if !IsRetryable(context.DeadlineExceeded) {
		t.Fatalf("IsRetryable(context.DeadlineExceeded) = false, want true")
	}
	if IsRetryable(errors.New("bad input")) {
		t.Fatalf("IsRetryable(plain error) = true, want false")
	}
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("Sleep() error = %v, want context.Canceled", err)
	}
}
