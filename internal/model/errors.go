package model

import "errors"

// Error taxonomy shared by the source, inference and storage layers.
// Callers wrap these with fmt.Errorf("...: %w", ErrX) and test with errors.Is.
var (
	// ErrAuth means there is no usable mail credential. Fatal to a run.
	ErrAuth = errors.New("not authenticated")

	// ErrFetch means the listing call failed. Fatal to a run.
	ErrFetch = errors.New("list messages failed")

	// ErrItemDetail means a single message could not be fetched. The item is dropped.
	ErrItemDetail = errors.New("message detail fetch failed")

	// ErrRateLimited means the inference backend throttled the call.
	ErrRateLimited = errors.New("inference rate limited")

	// ErrInference is any other inference backend failure.
	ErrInference = errors.New("inference failed")

	// ErrExtractionIncomplete means neither company nor position was found.
	ErrExtractionIncomplete = errors.New("extraction incomplete")

	// ErrPersistence means the save phase of a run failed.
	ErrPersistence = errors.New("persistence failed")

	// ErrRunActive is returned when a run is requested while another is active.
	ErrRunActive = errors.New("a run is already active")

	// ErrInvalidSettings is returned for out-of-range settings values.
	ErrInvalidSettings = errors.New("invalid settings")
)
