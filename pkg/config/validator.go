package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validator performs validation on resolved configuration.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll validates every configuration section, collecting all
// errors rather than stopping at the first.
func (v *Validator) ValidateAll() error {
	var errs []error

	errs = append(errs, v.validateServer()...)
	errs = append(errs, v.validateReconnect()...)
	errs = append(errs, v.validateStorage()...)
	errs = append(errs, v.validateLogging()...)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrValidationFailed, errors.Join(errs...))
	}
	return nil
}

func (v *Validator) validateServer() []error {
	var errs []error
	s := v.cfg.Server

	u, err := url.Parse(s.URL)
	if err != nil {
		errs = append(errs, NewValidationError("server", "url",
			fmt.Errorf("%w: %v", ErrInvalidValue, err)))
	} else if u.Scheme != "ws" && u.Scheme != "wss" {
		errs = append(errs, NewValidationError("server", "url",
			fmt.Errorf("%w: scheme must be ws or wss, got %q", ErrInvalidValue, u.Scheme)))
	}

	if s.WriteTimeout <= 0 {
		errs = append(errs, NewValidationError("server", "write_timeout",
			fmt.Errorf("%w: must be positive, got %v", ErrInvalidValue, s.WriteTimeout)))
	}

	return errs
}

func (v *Validator) validateReconnect() []error {
	var errs []error
	r := v.cfg.Reconnect

	if r.Interval <= 0 {
		errs = append(errs, NewValidationError("reconnect", "interval",
			fmt.Errorf("%w: must be positive, got %v", ErrInvalidValue, r.Interval)))
	}
	if r.MaxAttempts < 0 {
		errs = append(errs, NewValidationError("reconnect", "max_attempts",
			fmt.Errorf("%w: must be non-negative, got %d", ErrInvalidValue, r.MaxAttempts)))
	}

	return errs
}

func (v *Validator) validateStorage() []error {
	if v.cfg.Storage.Dir == "" {
		return []error{NewValidationError("storage", "dir",
			fmt.Errorf("%w: must not be empty", ErrInvalidValue))}
	}
	return nil
}

func (v *Validator) validateLogging() []error {
	switch v.cfg.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	}
	return []error{NewValidationError("logging", "level",
		fmt.Errorf("%w: must be one of debug, info, warn, error; got %q",
			ErrInvalidValue, v.cfg.Logging.Level))}
}
