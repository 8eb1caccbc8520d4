package config

import "errors"

var (
	// ErrConfigNotFound indicates the configuration or policy file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidFormat indicates the file could not be decoded.
	ErrInvalidFormat = errors.New("invalid configuration format")

	// ErrUnsupportedFormat indicates an extension other than .yaml, .yml or .json.
	ErrUnsupportedFormat = errors.New("unsupported configuration format")

	// ErrValidationFailed wraps the accumulated ValidationErrors.
	ErrValidationFailed = errors.New("configuration validation failed")

	// ErrMissingEnvVar indicates a ${VAR:?msg} reference to an unset variable,
	// or any unset reference in strict mode.
	ErrMissingEnvVar = errors.New("required environment variable not set")
)
