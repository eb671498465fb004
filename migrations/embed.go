// Package migrations embeds SQL migration files into the binary.
//
// Importing this package for its side effect registers the migrations
// with the database package.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-cloudbridge/internal/infrastructure/database"
)

//go:embed *.up.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
