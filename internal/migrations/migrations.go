// Package migrations holds the versioned database schema for the
// deployment history store.
package migrations

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations is the registry the db command applies.
var Migrations = migrate.NewMigrations()
