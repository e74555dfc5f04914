package gmail

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
)

// Error taxonomy for provider calls: transient errors are retried with
// backoff before surfacing, permanent client errors are surfaced
// immediately, and a stale change-log cursor becomes
// syncer.ErrStaleWatermark upstream.

// IsRateLimited reports a rate-limit or quota rejection.
func IsRateLimited(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == http.StatusTooManyRequests {
		return true
	}
	if apiErr.Code == http.StatusForbidden {
		for _, e := range apiErr.Errors {
			if e.Reason == "rateLimitExceeded" || e.Reason == "userRateLimitExceeded" {
				return true
			}
		}
	}
	return false
}

// IsTransient reports an error worth retrying: rate limits and server
// errors.
func IsTransient(err error) bool {
	if IsRateLimited(err) {
		return true
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code >= 500
	}
	// Network-level failures come back as plain errors; treat them as
	// transient.
	return !errors.As(err, &apiErr)
}

// IsPermanent reports a client error that retrying cannot fix.
func IsPermanent(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code >= 400 && apiErr.Code < 500 && !IsRateLimited(err)
}

// isStaleHistoryErr matches the API's "history id too old" responses:
// a 404 on history.list, or a 400 complaining about the historyId
// parameter.
func isStaleHistoryErr(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == http.StatusNotFound {
		return true
	}
	if apiErr.Code == http.StatusBadRequest && strings.Contains(apiErr.Message, "historyId") {
		return true
	}
	return false
}
