package sql

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViolatedConstraintPostgres(t *testing.T) {
	tests := []struct {
		code     string
		wantKind ConstraintKind
		wantName string
	}{
		{"23505", ConstraintUnique, "users_email_key"},
		{"23503", ConstraintForeignKey, "books_category_id_fkey"},
		{"23514", ConstraintCheck, "books_views_check"},
		{"42P01", ConstraintNone, ""},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := &pq.Error{Code: pq.ErrorCode(tt.code), Constraint: tt.wantName}
			kind, name := ViolatedConstraint(err)
			assert.Equal(t, tt.wantKind, kind)
			assert.Equal(t, tt.wantName, name)
		})
	}

	t.Run("not null carries the column", func(t *testing.T) {
		err := &pq.Error{Code: "23502", Column: "title"}
		kind, name := ViolatedConstraint(err)
		assert.Equal(t, ConstraintNotNull, kind)
		assert.Equal(t, "title", name)
	})

	t.Run("wrapped", func(t *testing.T) {
		err := fmt.Errorf("dialect/sql: exec: %w", &pq.Error{Code: "23505", Constraint: "u"})
		require.True(t, IsUniqueConstraintError(err))
	})
}

func TestViolatedConstraintMySQL(t *testing.T) {
	tests := []struct {
		number   uint16
		wantKind ConstraintKind
	}{
		{1062, ConstraintUnique},
		{1451, ConstraintForeignKey},
		{1452, ConstraintForeignKey},
		{3819, ConstraintCheck},
		{1146, ConstraintNone},
	}
	for _, tt := range tests {
		err := &mysql.MySQLError{Number: tt.number, Message: "boom"}
		kind, _ := ViolatedConstraint(err)
		assert.Equal(t, tt.wantKind, kind, "error number %d", tt.number)
	}
}

func TestViolatedConstraintSQLite(t *testing.T) {
	// modernc.org/sqlite reports plain strings.
	kind, name := ViolatedConstraint(errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)"))
	assert.Equal(t, ConstraintUnique, kind)
	assert.Equal(t, "users.email", name)

	kind, _ = ViolatedConstraint(errors.New("constraint failed: FOREIGN KEY constraint failed (787)"))
	assert.Equal(t, ConstraintForeignKey, kind)

	kind, name = ViolatedConstraint(errors.New("constraint failed: NOT NULL constraint failed: books.title (1299)"))
	assert.Equal(t, ConstraintNotNull, kind)
	assert.Equal(t, "books.title", name)

	kind, _ = ViolatedConstraint(errors.New("no such table: users"))
	assert.Equal(t, ConstraintNone, kind)
}

func TestConstraintPredicates(t *testing.T) {
	assert.False(t, IsConstraintError(nil))
	assert.False(t, IsConstraintError(errors.New("plain")))
	assert.True(t, IsConstraintError(&pq.Error{Code: "23514"}))
	assert.True(t, IsCheckConstraintError(&pq.Error{Code: "23514"}))
	assert.False(t, IsForeignKeyConstraintError(&pq.Error{Code: "23514"}))
}

func TestConstraintKindString(t *testing.T) {
	assert.Equal(t, "unique", ConstraintUnique.String())
	assert.Equal(t, "foreign_key", ConstraintForeignKey.String())
	assert.Equal(t, "check", ConstraintCheck.String())
	assert.Equal(t, "not_null", ConstraintNotNull.String())
	assert.Equal(t, "none", ConstraintNone.String())
}
