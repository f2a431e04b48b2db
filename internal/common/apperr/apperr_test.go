package apperr

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestCodes(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(CodePersistence, cause, "save plan %s", "ground")

	if !Is(err, CodePersistence) {
		t.Fatalf("Is(%v, PERSISTENCE_FAILED) = false", err)
	}
	if Is(err, CodeNotFound) {
		t.Errorf("Is matched a foreign code")
	}
	if !errors.Is(err, cause) {
		t.Errorf("cause lost in chain")
	}
	if got := UserMessage(err); got != "save plan ground" {
		t.Errorf("UserMessage = %q", got)
	}
	if got := GetCode(errors.New("plain")); got != "" {
		t.Errorf("GetCode(plain) = %q, want empty", got)
	}
	if got := UserMessage(errors.New("plain")); got != "plain" {
		t.Errorf("UserMessage(plain) = %q", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeInvalidInput, http.StatusBadRequest},
		{CodeMalformedData, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeAlreadyExists, http.StatusConflict},
		{CodeAssetUnavailable, http.StatusUnprocessableEntity},
		{CodeHubUnavailable, http.StatusBadGateway},
		{CodeInternal, http.StatusInternalServerError},
		{"", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.code); got != tt.want {
			t.Errorf("HTTPStatus(%q) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, 3, time.Millisecond, func() error {
			calls++
			if calls < 3 {
				return Retryable(errors.New("timeout"))
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Retry: %v", err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("permanent error stops immediately", func(t *testing.T) {
		calls := 0
		perm := New(CodeInvalidInput, "bad")
		err := Retry(ctx, 5, time.Millisecond, func() error {
			calls++
			return perm
		})
		if !errors.Is(err, perm) {
			t.Fatalf("err = %v, want %v", err, perm)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("returns last error when attempts run out", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, 2, time.Millisecond, func() error {
			calls++
			return Retryable(errors.New("still down"))
		})
		if !IsRetryable(err) {
			t.Fatalf("err = %v, want retryable", err)
		}
		if calls != 2 {
			t.Errorf("calls = %d, want 2", calls)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := Retry(cctx, 3, time.Second, func() error {
			return Retryable(errors.New("down"))
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})

	if Retryable(nil) != nil {
		t.Errorf("Retryable(nil) != nil")
	}
}
