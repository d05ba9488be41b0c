package loom_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	loom "github.com/weavedb/loom"
)

func TestNotFoundError(t *testing.T) {
	err := loom.NewNotFoundError("Book")
	assert.Equal(t, "loom: Book not found", err.Error())
	assert.Equal(t, "Book", err.Label())
	assert.Nil(t, err.ID())

	withID := loom.NewNotFoundErrorWithID("Book", 42)
	assert.Equal(t, "loom: Book not found (id=42)", withID.Error())
	assert.Equal(t, 42, withID.ID())

	// Matches the sentinel through errors.Is.
	assert.ErrorIs(t, err, loom.ErrNotFound)
	assert.True(t, loom.IsNotFound(err))
	assert.True(t, loom.IsNotFound(fmt.Errorf("handler: %w", withID)))
	assert.True(t, loom.IsNotFound(loom.ErrNotFound))
	assert.False(t, loom.IsNotFound(nil))
	assert.False(t, loom.IsNotFound(errors.New("boom")))
}

func TestValidationError(t *testing.T) {
	base := errors.New("must not be empty")
	err := &loom.ValidationError{Name: "title", Err: base}
	assert.Equal(t, `loom: validation failed for "title": must not be empty`, err.Error())
	assert.ErrorIs(t, err, base)
	assert.True(t, loom.IsValidationError(err))
	assert.False(t, loom.IsValidationError(base))
	assert.False(t, loom.IsValidationError(nil))
}

func TestQueryError(t *testing.T) {
	base := errors.New("syntax error")
	err := &loom.QueryError{Entity: "Book", Op: "select", Err: base}
	assert.Equal(t, "loom: querying Book (select): syntax error", err.Error())
	assert.ErrorIs(t, err, base)
	assert.True(t, loom.IsQueryError(err))

	noOp := &loom.QueryError{Entity: "Book", Err: base}
	assert.Equal(t, "loom: querying Book: syntax error", noOp.Error())
}

func TestMutationError(t *testing.T) {
	base := errors.New("disk full")
	err := &loom.MutationError{Entity: "Book", Op: "create", Err: base}
	assert.Equal(t, "loom: create Book: disk full", err.Error())
	assert.ErrorIs(t, err, base)
	assert.True(t, loom.IsMutationError(err))
	assert.False(t, loom.IsMutationError(base))
}

func TestRollbackError(t *testing.T) {
	original := errors.New("insert failed")
	rollback := errors.New("connection lost")
	err := &loom.RollbackError{Err: original, Rollback: rollback}
	assert.Equal(t, "loom: rollback failed: connection lost (original: insert failed)", err.Error())
	// Unwrap exposes the error that triggered the rollback.
	assert.ErrorIs(t, err, original)
	assert.NotErrorIs(t, err, rollback)
}

func TestConstraintErrorPredicatesNil(t *testing.T) {
	require.False(t, loom.IsConstraintError(nil))
	require.False(t, loom.IsUniqueConstraintError(errors.New("plain")))
	require.False(t, loom.IsForeignKeyConstraintError(nil))
}
