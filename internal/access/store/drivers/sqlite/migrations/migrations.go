// Package migrations embeds the sqlite schema migration files so the driver
// can apply them from the compiled binary.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
