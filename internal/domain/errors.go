package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyLocked      = errors.New("card instance already locked")
	ErrInvalidState       = errors.New("invalid escrow state")
	ErrTransactionFailure = errors.New("transaction failure")
	ErrInvalidArgument    = errors.New("invalid argument")
)
