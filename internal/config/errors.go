package config

import "errors"

var (
	// ErrInvalidConfig marks a setting that failed Validate.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrLoadConfig marks a config file or environment that could not be read.
	ErrLoadConfig = errors.New("reading configuration")
)
