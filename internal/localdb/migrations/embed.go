package migrations

import "embed"

// FS holds the SQL migrations applied by localdb.Migrate.
//
//go:embed *.sql
var FS embed.FS
