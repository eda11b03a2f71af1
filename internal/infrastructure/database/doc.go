// Package database provides the SQLite connection and schema migrations
// backing the housekeeper's run-history store.
//
// The database is opened with WAL mode and a busy timeout, restricted to
// a single writer connection (SQLite's natural model). Migrations are
// embedded into the binary by the top-level migrations package and
// applied on startup:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, ...})
//	if err != nil { ... }
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil { ... }
//
// Registry state (areas, devices, entities) is deliberately NOT stored
// here: every audit/plan/apply re-fetches a fresh snapshot from the
// registry. Only operation history lives in SQLite.
package database
