package myerrors

import "errors"

var (
	ErrFieldIsEmpty      = errors.New("field is empty")
	ErrDriverNotFound    = errors.New("driver not found or not connected")
	ErrDriverUnavailable = errors.New("driver is not available")
	ErrNotRegistered     = errors.New("driver not registered")
	ErrDBRejected        = errors.New("database rejected the request")
)
