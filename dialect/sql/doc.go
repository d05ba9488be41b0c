// Package sql provides wrappers around the standard database/sql package
// and a fluent, dialect-aware builder for SQL statements.
//
// Statements are composed from chained builder calls and compiled with
// Query(), which returns the statement text and its bound arguments.
// Values are always bound as parameters, never interpolated into the text:
//
//	s := sql.Dialect(dialect.Postgres).
//		Select("id", "name").
//		From(sql.Table("users")).
//		Where(sql.And(sql.EQ("active", true), sql.GT("age", 18))).
//		OrderBy("name").
//		Limit(10)
//	query, args := s.Query()
//
// The package also provides the database/sql-backed dialect.Driver, row
// scanning helpers, constraint-violation classification for the supported
// drivers, and a statistics-collecting driver wrapper.
package sql
