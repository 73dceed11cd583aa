package youtube

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"

	"google.golang.org/api/googleapi"
)

var (
	// ErrNotReady indicates a file is still being written and should be
	// retried on a later scan cycle.
	ErrNotReady = errors.New("file is not ready for upload")

	// ErrQuotaExceeded indicates the daily API quota has been exhausted.
	ErrQuotaExceeded = errors.New("youtube api quota exceeded")
)

// isTransientAPIError reports whether an upload error is worth retrying.
// Rate limits and server-side failures are transient; malformed requests
// and auth failures will not improve with repetition.
func isTransientAPIError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return true
		case apiErr.Code >= 500:
			return true
		case apiErr.Code == 403:
			// 403 covers both hard quota exhaustion and per-minute rate
			// limiting; only the latter is worth waiting out.
			for _, e := range apiErr.Errors {
				if e.Reason == "rateLimitExceeded" || e.Reason == "userRateLimitExceeded" {
					return true
				}
			}
			return false
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}

// isQuotaExceeded reports whether err is a hard daily-quota failure.
func isQuotaExceeded(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != 403 {
		return false
	}
	for _, e := range apiErr.Errors {
		if e.Reason == "quotaExceeded" || e.Reason == "dailyLimitExceeded" {
			return true
		}
	}
	return false
}
