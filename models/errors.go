package models

import "errors"

// Domain errors surfaced by policy and state-machine helpers. Controllers map
// these onto HTTP statuses and machine-readable sub-codes.
var (
	// Moderation
	ErrAlreadyProcessed = errors.New("tree has already been processed")
	ErrInvalidParent    = errors.New("parent node must belong to the same tree")

	// Licensing
	ErrLicenseNotFound = errors.New("license not found")
	ErrLicenseInvalid  = errors.New("license is invalid or expired")
	ErrDomainMismatch  = errors.New("license is bound to another domain")
	ErrCurrentLicense  = errors.New("cannot delete the currently active license")

	// Users
	ErrLastSuperAdmin = errors.New("cannot delete the last super admin")
)
