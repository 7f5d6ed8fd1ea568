// Package database provides the SQLite connection behind the bridge's
// optional device history store.
//
// It manages the connection pragmas (WAL mode, busy timeout), embedded
// schema migrations and connection lifecycle. All queries use
// parameterised statements and the database file is created with 0600
// permissions.
//
// Usage:
//
//	db, err := database.Open(cfg)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files live in the top-level migrations directory as
// YYYYMMDD_HHMMSS_description.up.sql / .down.sql pairs and are embedded
// into the binary.
package database
