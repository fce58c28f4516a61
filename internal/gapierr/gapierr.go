// Package gapierr maps Google API failures onto the pipeline's error model:
// rate limits and server errors are retryable, auth and quota problems abort
// the phase.
package gapierr

import (
	"context"
	"errors"

	"google.golang.org/api/googleapi"

	"github.com/okozlov/mailvault/internal/domain"
)

// Classify wraps err as transient or fatal for the coordinator's retry logic.
// Context cancellation passes through unwrapped.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 429 || gerr.Code >= 500:
			return domain.Transient(op, err)
		default:
			// 401, 403 and other client errors need operator action.
			return domain.Fatal(op, err)
		}
	}

	// Anything else is assumed to be a network blip.
	return domain.Transient(op, err)
}
