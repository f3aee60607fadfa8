package storage

import "errors"

var (
	ErrNotFound     = errors.New("storage: not found")
	ErrInvalidName  = errors.New("storage: invalid name")
	ErrNameMismatch = errors.New("storage: stored name mismatch")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
