package gmail

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/api/googleapi"
)

func apiError(code int, reason string) error {
	err := &googleapi.Error{Code: code}
	if reason != "" {
		err.Errors = []googleapi.ErrorItem{{Reason: reason}}
	}
	return err
}

func TestIsRateLimited(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"429", apiError(http.StatusTooManyRequests, ""), true},
		{"403 rateLimitExceeded", apiError(http.StatusForbidden, "rateLimitExceeded"), true},
		{"403 userRateLimitExceeded", apiError(http.StatusForbidden, "userRateLimitExceeded"), true},
		{"403 other reason", apiError(http.StatusForbidden, "insufficientPermissions"), false},
		{"500", apiError(http.StatusInternalServerError, ""), false},
		{"plain error", errors.New("connection reset"), false},
		{"wrapped 429", fmt.Errorf("call failed: %w", apiError(http.StatusTooManyRequests, "")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRateLimited(tt.err); got != tt.want {
				t.Errorf("IsRateLimited() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"500", apiError(http.StatusInternalServerError, ""), true},
		{"503", apiError(http.StatusServiceUnavailable, ""), true},
		{"429", apiError(http.StatusTooManyRequests, ""), true},
		{"404", apiError(http.StatusNotFound, ""), false},
		{"400", apiError(http.StatusBadRequest, ""), false},
		{"network error", errors.New("connection refused"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"404", apiError(http.StatusNotFound, ""), true},
		{"400", apiError(http.StatusBadRequest, ""), true},
		{"429 is not permanent", apiError(http.StatusTooManyRequests, ""), false},
		{"500", apiError(http.StatusInternalServerError, ""), false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPermanent(tt.err); got != tt.want {
				t.Errorf("IsPermanent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsStaleHistoryErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"404", apiError(http.StatusNotFound, ""), true},
		{"400 mentioning historyId", &googleapi.Error{Code: http.StatusBadRequest, Message: "Invalid historyId value"}, true},
		{"400 other", &googleapi.Error{Code: http.StatusBadRequest, Message: "Invalid query"}, false},
		{"500", apiError(http.StatusInternalServerError, ""), false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isStaleHistoryErr(tt.err); got != tt.want {
				t.Errorf("isStaleHistoryErr() = %v, want %v", got, tt.want)
			}
		})
	}
}
