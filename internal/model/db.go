package model

import "gorm.io/gorm"

// Migrate creates the backend tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Course{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&PublishableEntityLink{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&LegacyBlock{}); err != nil {
		return err
	}

	return db.AutoMigrate(&MigrationTask{})
}

// MigrateLocal creates the client-local state tables.
func MigrateLocal(db *gorm.DB) error {
	if err := db.AutoMigrate(&AlertDismissal{}); err != nil {
		return err
	}

	return db.AutoMigrate(&TaskHandle{})
}
