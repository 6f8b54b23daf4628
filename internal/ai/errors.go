package ai

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"

	openai "github.com/openai/openai-go/v3"
)

// IsTransient reports whether a provider error is worth retrying.
// Rate limits, 5xx answers and dropped connections are transient; bad
// credentials, bad input and caller deadlines are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var elErr *ElevenLabsAPIError
	if errors.As(err, &elErr) {
		return retryableStatus(elErr.StatusCode)
	}
	var oaErr *openai.Error
	if errors.As(err, &oaErr) {
		return retryableStatus(oaErr.StatusCode)
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// StatusCode extracts the upstream HTTP status from a provider error, or 0.
func StatusCode(err error) int {
	var elErr *ElevenLabsAPIError
	if errors.As(err, &elErr) {
		return elErr.StatusCode
	}
	var oaErr *openai.Error
	if errors.As(err, &oaErr) {
		return oaErr.StatusCode
	}
	return 0
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= http.StatusInternalServerError
}
