package myerrors

import "errors"

var (
	ErrFieldIsEmpty        = errors.New("field is empty")
	ErrNotLoggedIn         = errors.New("please login first or provide username in payload")
	ErrIncompleteLocation  = errors.New("incomplete location data")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidToken        = errors.New("invalid session token")
	ErrDriverUnavailable   = errors.New("driver is not available")
	ErrRegistryRejected    = errors.New("driver registry rejected the request")
	ErrDBRejected          = errors.New("database rejected the request")
	ErrRideNotCreated      = errors.New("failed to process ride request")
	ErrRideAlreadyFinished = errors.New("ride already finished")
)
