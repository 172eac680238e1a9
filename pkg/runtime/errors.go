// Package runtime provides the connection handle and statement executor used by models.
package runtime

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")

	// ErrNoPrimaryKey is returned when an operation needs a primary key value and the record has none.
	ErrNoPrimaryKey = errors.New("no primary key value")

	// ErrNoConnection is returned when no database connection is available.
	ErrNoConnection = errors.New("no database connection")
)

// ConnectionError is returned when the connection pool cannot be established.
// It is not retried.
type ConnectionError struct {
	Err error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// StatementError wraps a driver failure for one statement together with the
// SQL text and the bound parameters.
type StatementError struct {
	Query  string
	Params map[string]any
	Err    error
}

// Error implements the error interface.
func (e *StatementError) Error() string {
	return fmt.Sprintf("statement error: %v\nQuery: %s", e.Err, e.Query)
}

// Unwrap returns the underlying error.
func (e *StatementError) Unwrap() error {
	return e.Err
}

// FeatureDisabledError is returned when a soft-delete operation is invoked on
// a table that does not have the feature enabled.
type FeatureDisabledError struct {
	Table   string
	Feature string
}

// Error implements the error interface.
func (e *FeatureDisabledError) Error() string {
	return fmt.Sprintf("%s is not enabled for table %s", e.Feature, e.Table)
}
