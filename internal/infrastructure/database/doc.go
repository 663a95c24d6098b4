// Package database provides SQLite connectivity for the intercom access service.
//
// This package manages:
//   - Database connection with WAL mode and foreign keys enabled
//   - Embedded schema migrations
//   - Transactions via WithTx and the Querier interface
//   - A fixed-width UTC timestamp format shared by all repositories
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Every migration file has both .up.sql and .down.sql halves, named
// YYYYMMDD_HHMMSS_description.{up,down}.sql.
package database
