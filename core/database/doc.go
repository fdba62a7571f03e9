// Package database handles database connections.
//
// It provides a wrapper around GORM (Go Object Relational Mapping) to properly
// configure MySQL connections based on the application's configuration. A sqlite
// driver is also supported for local runs and tests.
//
// # Connect
//
// The generic Connect function establishes a connection to the database, tunes the
// connection pool, and verifies connectivity with a ping before returning.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    log.Fatal("Database connection failed", err)
//	}
package database
