package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// ErrJobNotFound is returned when a job id has no row.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobExists is returned when creating a job whose id is already taken.
	ErrJobExists = errors.New("job already exists")
	// ErrFileNotFound is returned when a job file id has no row.
	ErrFileNotFound = errors.New("job file not found")
	// ErrCredentialNotFound is returned when an owner has no stored provider credential.
	ErrCredentialNotFound = errors.New("provider credential not found")
)
