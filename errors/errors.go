/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package errors

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrNotFound is returned when an entity is not found
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned when attempting to create an entity that already exists
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotInSchema is returned when a model is not part of a database schema
	ErrNotInSchema = errors.New("model is not part of the schema")

	// ErrSchemaMismatch is returned when the stored schema version differs from the configured one
	// and the configuration neither migrates nor deletes the database.
	ErrSchemaMismatch = errors.New("schema version mismatch")

	// ErrPrimaryKeyRequired is returned by upserts on models without a primary key
	ErrPrimaryKeyRequired = errors.New("model has no primary key")

	// ErrNotInitialized is returned when no configuration is registered for a model
	// and no default configuration was set.
	ErrNotInitialized = errors.New("embedstore is not initialized")

	// ErrClosed is returned when using a closed instance
	ErrClosed = errors.New("instance is closed")
)

// NotFoundError represents an error when an entity is not found
type NotFoundError struct {
	Type string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with key %q not found", e.Type, e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// AlreadyExistsError represents an error when an entity already exists
type AlreadyExistsError struct {
	Type string
	Key  string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s with key %q already exists", e.Type, e.Key)
}

func (e *AlreadyExistsError) Is(target error) bool {
	return target == ErrAlreadyExists
}

// ValidationError represents an input validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %q: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NotInSchemaError is returned when a model type is used against a database
// whose configuration does not list it.
type NotInSchemaError struct {
	Model    string
	Database string
}

func (e *NotInSchemaError) Error() string {
	return fmt.Sprintf("%s is not part of the schema for database %q", e.Model, e.Database)
}

func (e *NotInSchemaError) Is(target error) bool {
	return target == ErrNotInSchema
}

// SchemaMismatchError reports a stored schema version that differs from the configured one.
type SchemaMismatchError struct {
	Database string
	Stored   uint64
	Wanted   uint64
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("database %q has schema version %d, configuration requires %d: migration required",
		e.Database, e.Stored, e.Wanted)
}

func (e *SchemaMismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

// Helper functions for creating errors

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(entityType, key string) error {
	return &NotFoundError{Type: entityType, Key: key}
}

// NewAlreadyExistsError creates a new AlreadyExistsError
func NewAlreadyExistsError(entityType, key string) error {
	return &AlreadyExistsError{Type: entityType, Key: key}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NewNotInSchemaError creates a new NotInSchemaError
func NewNotInSchemaError(model, database string) error {
	return &NotInSchemaError{Model: model, Database: database}
}

// NewSchemaMismatchError creates a new SchemaMismatchError
func NewSchemaMismatchError(database string, stored, wanted uint64) error {
	return &SchemaMismatchError{Database: database, Stored: stored, Wanted: wanted}
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsNotInSchema checks if an error is a not-in-schema error
func IsNotInSchema(err error) bool {
	return errors.Is(err, ErrNotInSchema)
}

// IsSchemaMismatch checks if an error is a schema mismatch error
func IsSchemaMismatch(err error) bool {
	return errors.Is(err, ErrSchemaMismatch)
}
