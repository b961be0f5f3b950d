// Package faults defines the two fault classes the analysis stages can
// surface: broken static configuration and missing upstream artifacts.
// Everything else is either wrapped I/O or a guarded computation that
// degrades to a documented default instead of failing.
package faults

import (
	"errors"
	"fmt"
)

// ConfigError marks a malformed or missing dictionary or rule table.
// It is fatal to the stage that needed the configuration, and only to
// that stage.
type ConfigError struct {
	Stage  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// InputError marks a required upstream artifact that is missing or
// empty. The dependent stage stops; independent stages keep running.
type InputError struct {
	Stage   string
	Missing string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: missing required input: %s", e.Stage, e.Missing)
}

func Config(stage, reason string, err error) error {
	return &ConfigError{Stage: stage, Reason: reason, Err: err}
}

func Input(stage, missing string) error {
	return &InputError{Stage: stage, Missing: missing}
}

func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func IsInput(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
