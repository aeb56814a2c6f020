package errors

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrTokenization = errors.New("tokenization failed")
	ErrModel        = errors.New("model error")
	ErrTraining     = errors.New("training error")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal")
)

func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsCallerError reports whether err was caused by caller supplied data.
// Tokenization failures count as bad input.
func IsCallerError(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrTokenization)
}

func IsModelError(err error) bool {
	return errors.Is(err, ErrModel)
}

func IsTrainingError(err error) bool {
	return errors.Is(err, ErrTraining)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
