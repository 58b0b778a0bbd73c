// Package database opens the SQLite file behind the command journal and
// applies its schema migrations.
//
// The database is optional: it exists only when journal.enabled is set.
// Migrations are embedded by the caller and passed in as an fs.FS:
//
//	db, err := database.Open(database.Config{Path: cfg.JournalPath(), WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS, "."); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be nullable or carry a
// default, and every .up.sql has a matching .down.sql.
package database
