package domain

import "errors"

var (
	// ErrReviewSourceUnavailable marks a hard aggregation failure: the raw
	// review set could not be fetched and no stale fallback is allowed.
	ErrReviewSourceUnavailable = errors.New("review source unavailable")

	// ErrMissingSubject marks an event without a subject identity.
	ErrMissingSubject = errors.New("event missing subject id")

	// ErrMissingReviewer marks an event without a reviewer identity.
	ErrMissingReviewer = errors.New("event missing reviewer id")

	// ErrRatingOutOfRange marks a rating outside [1, 5].
	ErrRatingOutOfRange = errors.New("rating out of range")
)
