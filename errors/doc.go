/*
Package errors provides semantic error types for the embedstore library.

The package defines common error scenarios with specific types that can be
checked using the standard errors.Is() function or the provided helper functions.

Common Errors:

	var (
	    ErrNotFound           = errors.New("entity not found")
	    ErrAlreadyExists      = errors.New("entity already exists")
	    ErrInvalidInput       = errors.New("invalid input")
	    ErrNotInSchema        = errors.New("model is not part of the schema")
	    ErrSchemaMismatch     = errors.New("schema version mismatch")
	    ErrPrimaryKeyRequired = errors.New("model has no primary key")
	)

Usage:

	err := embedstore.CreateOrUpdate(ctx, &LogEntry{Message: "hi"})
	if errors.Is(err, storeerrors.ErrPrimaryKeyRequired) {
	    // LogEntry has no primary key, use Create instead
	}

	_, err = db.Open(ctx, cfg)
	if storeerrors.IsSchemaMismatch(err) {
	    // bump the schema version or set a migration
	}

The error types implement the error interface and support wrapping,
making them compatible with Go's standard error handling patterns.
*/
package errors
