package ai

import "errors"

// ErrQuotaExceeded is returned when the model provider rejects a review
// with HTTP 429.
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// ErrEmptyReview is returned when the provider answers without content.
var ErrEmptyReview = errors.New("ai returned no review")
