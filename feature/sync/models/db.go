package models

import "gorm.io/gorm"

// Migrate creates or updates the sync tables. Connection is included so
// fresh local databases are usable without the admin surface having run
// first; in production the admin owns that table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Connection{},
		&ResourceMapping{},
		&UnmappedReference{},
		&SyncRun{},
		&SyncSchedule{},
	)
}
