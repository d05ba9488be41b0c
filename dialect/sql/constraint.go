package sql

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// ConstraintKind classifies a database constraint violation.
type ConstraintKind int

// Constraint kinds reported by ViolatedConstraint.
const (
	ConstraintNone ConstraintKind = iota
	ConstraintUnique
	ConstraintForeignKey
	ConstraintCheck
	ConstraintNotNull
)

// String returns the constraint kind name.
func (k ConstraintKind) String() string {
	switch k {
	case ConstraintUnique:
		return "unique"
	case ConstraintForeignKey:
		return "foreign_key"
	case ConstraintCheck:
		return "check"
	case ConstraintNotNull:
		return "not_null"
	default:
		return "none"
	}
}

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
const (
	pgNotNullViolation    = "23502"
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
)

// MySQL error numbers for constraint violations.
const (
	mysqlDuplicateEntry         = 1062
	mysqlForeignKeyParent       = 1451 // Cannot delete or update a parent row.
	mysqlForeignKeyChild        = 1452 // Cannot add or update a child row.
	mysqlCheckConstraintViolate = 3819
)

// ViolatedConstraint inspects a driver error and returns the kind of
// constraint it violated and, when the driver exposes it, the constraint
// name. ConstraintNone is returned for non-constraint errors.
func ViolatedConstraint(err error) (ConstraintKind, string) {
	if err == nil {
		return ConstraintNone, ""
	}
	var pqerr *pq.Error
	if errors.As(err, &pqerr) {
		switch string(pqerr.Code) {
		case pgUniqueViolation:
			return ConstraintUnique, pqerr.Constraint
		case pgForeignKeyViolation:
			return ConstraintForeignKey, pqerr.Constraint
		case pgCheckViolation:
			return ConstraintCheck, pqerr.Constraint
		case pgNotNullViolation:
			return ConstraintNotNull, pqerr.Column
		}
		return ConstraintNone, ""
	}
	var myerr *mysql.MySQLError
	if errors.As(err, &myerr) {
		switch myerr.Number {
		case mysqlDuplicateEntry:
			return ConstraintUnique, ""
		case mysqlForeignKeyParent, mysqlForeignKeyChild:
			return ConstraintForeignKey, ""
		case mysqlCheckConstraintViolate:
			return ConstraintCheck, ""
		}
		return ConstraintNone, ""
	}
	// Fallback to string matching for drivers without typed errors
	// (modernc.org/sqlite reports plain error strings).
	msg := err.Error()
	switch {
	case containsAny(msg, "UNIQUE constraint failed", "violates unique constraint", "Error 1062"):
		return ConstraintUnique, sqliteConstraintName(msg, "UNIQUE constraint failed: ")
	case containsAny(msg, "FOREIGN KEY constraint failed", "violates foreign key constraint", "Error 1451", "Error 1452"):
		return ConstraintForeignKey, ""
	case containsAny(msg, "CHECK constraint failed", "violates check constraint", "Error 3819"):
		return ConstraintCheck, sqliteConstraintName(msg, "CHECK constraint failed: ")
	case containsAny(msg, "NOT NULL constraint failed", "violates not-null constraint"):
		return ConstraintNotNull, sqliteConstraintName(msg, "NOT NULL constraint failed: ")
	}
	return ConstraintNone, ""
}

// IsConstraintError reports if the error resulted from any database
// constraint violation.
func IsConstraintError(err error) bool {
	kind, _ := ViolatedConstraint(err)
	return kind != ConstraintNone
}

// IsUniqueConstraintError reports if the error resulted from a uniqueness
// constraint violation (e.g. duplicate value in a unique index).
func IsUniqueConstraintError(err error) bool {
	kind, _ := ViolatedConstraint(err)
	return kind == ConstraintUnique
}

// IsForeignKeyConstraintError reports if the error resulted from a
// foreign-key constraint violation (e.g. missing parent row).
func IsForeignKeyConstraintError(err error) bool {
	kind, _ := ViolatedConstraint(err)
	return kind == ConstraintForeignKey
}

// IsCheckConstraintError reports if the error resulted from a check
// constraint violation.
func IsCheckConstraintError(err error) bool {
	kind, _ := ViolatedConstraint(err)
	return kind == ConstraintCheck
}

// sqliteConstraintName extracts the violated column/constraint reference
// from a SQLite error message (e.g. "UNIQUE constraint failed: users.email").
func sqliteConstraintName(msg, prefix string) string {
	i := strings.Index(msg, prefix)
	if i == -1 {
		return ""
	}
	name := msg[i+len(prefix):]
	if j := strings.IndexAny(name, " ("); j != -1 {
		name = name[:j]
	}
	return strings.TrimSuffix(strings.TrimSpace(name), ")")
}

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
