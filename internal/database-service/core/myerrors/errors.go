package myerrors

import "errors"

var (
	ErrFieldIsEmpty        = errors.New("field is empty")
	ErrDuplicate           = errors.New("username already registered")
	ErrPassengerNotFound   = errors.New("passenger not found")
	ErrDriverNotFound      = errors.New("driver not found")
	ErrRideNotFound        = errors.New("ride not found")
	ErrInvalidTransition   = errors.New("invalid ride status transition")
	ErrDriverRequired      = errors.New("driver is required to assign a ride")
	ErrRideAlreadyAssigned = errors.New("ride already assigned to another driver")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrNotApproved         = errors.New("driver account not approved")
)
