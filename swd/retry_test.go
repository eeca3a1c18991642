package swd

import (
	"errors"
	"testing"
)

func TestRetrySucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(5, nil, func(attempt int) (bool, error) {
		calls++
		return true, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryStopsAtBound(t *testing.T) {
	calls := 0
	wantErr := errors.New("never succeeds")
	err := Retry(3, nil, func(attempt int) (bool, error) {
		calls++
		return false, wantErr
	})
	if err != wantErr {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryStopsEarlyOnFatalError(t *testing.T) {
	calls := 0
	wantErr := errors.New("fatal")
	err := Retry(10, nil, func(attempt int) (bool, error) {
		calls++
		if attempt == 1 {
			return true, wantErr
		}
		return false, nil
	})
	if err != wantErr {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (stopped at the fatal attempt)", calls)
	}
}

func TestRetryBackoffGrows(t *testing.T) {
	if RetryBackoff(0) >= RetryBackoff(3) {
		t.Errorf("RetryBackoff should grow with attempt: %v vs %v", RetryBackoff(0), RetryBackoff(3))
	}
}
