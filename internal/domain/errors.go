package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrWriteFailed        = errors.New("write failed")
	ErrReadFailed         = errors.New("read failed")
	ErrSuspectData        = errors.New("suspect cached data")
	ErrUnknownCollection  = errors.New("unknown collection")
	ErrOutOfScope         = errors.New("collection not in transaction scope")
	ErrVersionDowngrade   = errors.New("requested version is lower than stored version")
)
