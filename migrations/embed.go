// Package migrations embeds the kiosk controller's SQL migration files into
// the binary so they run without needing the SQL files present on disk.
package migrations

import (
	"embed"

	"github.com/paka-eco/kiosk-controller/internal/store"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	store.MigrationsFS = migrationsFS
	store.MigrationsDir = "."
}
