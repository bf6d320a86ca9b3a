package model

import (
	"fmt"
	"strings"
)

type Role string

const (
	RolePassenger Role = "PASSENGER"
	RoleDriver    Role = "DRIVER"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToUpper(s)); r {
	case RolePassenger, RoleDriver:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

type DriverStatus string

const (
	DriverPending  DriverStatus = "PENDING"
	DriverApproved DriverStatus = "APPROVED"
	DriverRejected DriverStatus = "REJECTED"
)

type Passenger struct {
	ID           int64
	Username     string
	PasswordHash string
	Phone        string
	Latitude     float64
	Longitude    float64
}

type Driver struct {
	ID           int64
	Username     string
	PasswordHash string
	Phone        string
	Latitude     float64
	Longitude    float64
	Available    bool
	Status       DriverStatus
	Application  DriverApplication
}

// DriverApplication holds the onboarding form of a detailed registration.
type DriverApplication struct {
	FullName          string `json:"full_name"`
	DOB               string `json:"dob"`
	Gender            string `json:"gender"`
	Nationality       string `json:"nationality"`
	IDNumber          string `json:"id_number"`
	Email             string `json:"email"`
	Address           string `json:"address"`
	LicenseNumber     string `json:"license_number"`
	LicenseType       string `json:"license_type"`
	LicenseIssueDate  string `json:"license_issue_date"`
	LicenseExpiryDate string `json:"license_expiry_date"`
	VehicleType       string `json:"vehicle_type"`
	VehicleModel      string `json:"vehicle_model"`
	VehicleYear       int    `json:"vehicle_year"`
	LicensePlate      string `json:"license_plate"`
}

// Credentials is what a login check needs from the store.
type Credentials struct {
	ID           int64
	PasswordHash string
	Status       DriverStatus
}
