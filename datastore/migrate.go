package datastore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

var (
	// ErrDuplicate is returned when an insert violates a unique constraint.
	ErrDuplicate = errors.New("record already exists")
	// ErrMissingReference is returned when an insert points at a row that does not exist.
	ErrMissingReference = errors.New("referenced record does not exist")
	// ErrNotCorporate is returned when an approval list edit targets an ICLA.
	ErrNotCorporate = errors.New("signature is not a corporate CLA")
	// ErrNotPending is returned when deciding an approval request that was already decided.
	ErrNotPending = errors.New("approval request is no longer pending")
	// ErrAlreadySigned is returned when signing a signature twice.
	ErrAlreadySigned = errors.New("signature is already signed")
)

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// classifyWriteError maps PostgreSQL constraint violations onto the
// package's sentinel errors, keeping the driver error in the chain.
func classifyWriteError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case "23505": // unique_violation
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	case "23503": // foreign_key_violation
		return fmt.Errorf("%w: %w", ErrMissingReference, err)
	}
	return err
}
