// Package agentdb holds all the migrations for the settlement agent database
package agentdb

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations is the collection of all migrations for the agent database
var Migrations = migrate.NewMigrations()
