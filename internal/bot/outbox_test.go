package bot

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func dialErr() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
}

func TestDeliverRetriesTransientErrors(t *testing.T) {
	calls := 0
	got, err := deliver(context.Background(), "send_text", time.Millisecond, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, dialErr()
		}
		return 7, nil
	})
	if err != nil || got != 7 {
		t.Fatalf("deliver = %d, %v", got, err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestDeliverStopsOnPermanentError(t *testing.T) {
	badRequest := errors.New("telegram: bad request: chat not found (400)")
	calls := 0
	_, err := deliver(context.Background(), "send_text", time.Millisecond, func() (int, error) {
		calls++
		return 0, badRequest
	})
	if !errors.Is(err, badRequest) {
		t.Fatalf("expected the original error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("permanent error retried %d times", calls)
	}
}

func TestDeliverGivesUpAfterMaxTries(t *testing.T) {
	calls := 0
	_, err := deliver(context.Background(), "edit_text", time.Millisecond, func() (struct{}, error) {
		calls++
		return struct{}{}, dialErr()
	})
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if calls != sendTries {
		t.Fatalf("expected %d attempts, got %d", sendTries, calls)
	}
}

func TestDeliverKeepsNotModifiedDetectable(t *testing.T) {
	_, err := deliver(context.Background(), "edit_text", time.Millisecond, func() (struct{}, error) {
		return struct{}{}, errors.New("telegram: bad request: message is not modified (400)")
	})
	if !notModified(err) {
		t.Fatalf("not-modified error lost: %v", err)
	}
}
