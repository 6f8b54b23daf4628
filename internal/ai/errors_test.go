package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"syscall"
	"testing"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", &ElevenLabsAPIError{StatusCode: http.StatusTooManyRequests}, true},
		{"server error", fmt.Errorf("speech: %w", &ElevenLabsAPIError{StatusCode: http.StatusBadGateway}), true},
		{"bad auth", &ElevenLabsAPIError{StatusCode: http.StatusUnauthorized}, false},
		{"bad input", &ElevenLabsAPIError{StatusCode: http.StatusUnprocessableEntity}, false},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"short body", io.ErrUnexpectedEOF, true},
		{"deadline", context.DeadlineExceeded, false},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Fatalf("%s: IsTransient = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestStatusCode(t *testing.T) {
	if got := StatusCode(&ElevenLabsAPIError{StatusCode: 500}); got != 500 {
		t.Fatalf("unexpected status: %d", got)
	}
	if got := StatusCode(errors.New("x")); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}
