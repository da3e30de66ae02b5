package gdd

import "errors"

// Wire codes shared by the REST API and HTTPPipeline.
const (
	CodeNotFound         = "not_found"
	CodeNoActiveQuestion = "no_active_question"
	CodeNotFinished      = "not_finished"
	CodeInternal         = "internal"
)

// ErrorCode maps a domain error to its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return CodeNotFound
	case errors.Is(err, ErrNoActiveQuestion):
		return CodeNoActiveQuestion
	case errors.Is(err, ErrNotFinished):
		return CodeNotFinished
	default:
		return CodeInternal
	}
}

func errorFromCode(code string) error {
	switch code {
	case CodeNotFound:
		return ErrSessionNotFound
	case CodeNoActiveQuestion:
		return ErrNoActiveQuestion
	case CodeNotFinished:
		return ErrNotFinished
	}
	return nil
}
