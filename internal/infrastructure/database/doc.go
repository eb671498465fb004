// Package database opens the bridge's local SQLite store and keeps its
// schema current.
//
// The store holds the command audit trail. Schema files live in the
// top-level migrations package, which embeds them and sets MigrationsFS:
//
//	import _ "github.com/nerrad567/gray-logic-cloudbridge/migrations"
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are forward-only. Files are named
// YYYYMMDD_HHMMSS_description.up.sql and new columns must be nullable or
// carry a default. The database file is created with mode 0600.
package database
