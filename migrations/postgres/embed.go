// Package migrations embebe los archivos SQL del esquema de PostgreSQL.
package migrations

import "embed"

// FS contiene las migraciones *_up.sql y *_down.sql.
//
//go:embed *.sql
var FS embed.FS
