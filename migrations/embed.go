// Package migrations embeds SQL migration files into the binary.
//
// Importing it registers the files with the database package, so Migrate
// works without the SQL present on the filesystem.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-pixels/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
