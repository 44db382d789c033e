package config

import "errors"

var (
	// ErrInvalidConfig is returned when the environment fails validation.
	ErrInvalidConfig = errors.New("config: invalid configuration")

	// ErrInvalidManifest is returned when a probe manifest cannot be used.
	ErrInvalidManifest = errors.New("config: invalid probe manifest")
)
