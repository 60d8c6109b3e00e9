// HealthIntel - Public Health Surveillance ETL and Analytics
// Copyright 2026 gudetimes1234
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gudetimes1234/healthintel

// Package validation provides struct validation using go-playground/validator
// v10 behind a thread-safe singleton instance. It is used to reject malformed
// configuration at load time instead of failing lazily at first access.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is a single field validation failure with structured detail.
type FieldError struct {
	Field   string
	Tag     string
	Param   string
	Message string
}

// Error returns a human-readable description of the failure.
func (e *FieldError) Error() string {
	return e.Message
}

// StructError is the collection of field errors from one ValidateStruct call.
type StructError struct {
	fields []FieldError
}

// Fields returns the individual field errors.
func (e *StructError) Fields() []FieldError {
	return e.fields
}

// Error implements the error interface with a combined message.
func (e *StructError) Error() string {
	if len(e.fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(e.fields))
	for _, f := range e.fields {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, "; ")
}

// instance returns the singleton validator, constructing it on first use.
// The validator caches struct metadata, so sharing one instance matters.
func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateStruct validates a struct against its `validate` tags.
// Returns a *StructError describing every failing field, or nil.
func ValidateStruct(s interface{}) error {
	err := instance().Struct(s)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return fmt.Errorf("invalid argument to ValidateStruct: %w", err)
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	se := &StructError{fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		se.fields = append(se.fields, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: describeFieldError(fe),
		})
	}
	return se
}

// describeFieldError converts a validator field error to a readable message.
func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", fe.Field())
	case "len":
		return fmt.Sprintf("%s must have exactly %s elements", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed validation rule %q", fe.Field(), fe.Tag())
	}
}
