// Package migrations embeds the SQL migration files into the binary so
// the bridge can create its history schema without shipping loose
// files alongside the executable.
package migrations

import (
	"embed"

	"github.com/nerrad567/vlx2mqtt/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // Files are at root of embedded FS
}
