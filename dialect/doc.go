// Package dialect provides the database dialect abstraction used by loom.
//
// It defines the Driver, Tx and ExecQuerier interfaces that every backend
// implements, the dialect name constants, and a DebugDriver that logs every
// operation through log/slog.
//
// # Supported Dialects
//
//   - Postgres: PostgreSQL database
//   - MySQL: MySQL/MariaDB database
//   - SQLite: SQLite database
//
// The concrete database/sql-backed implementation lives in dialect/sql:
//
//	drv, err := sql.Open(dialect.SQLite, "file:app.db?_pragma=foreign_keys(1)")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
package dialect
