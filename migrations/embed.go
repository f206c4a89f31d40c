// Package migrations embeds the SQL schema migrations.
package migrations

import "embed"

// Postgres holds the golang-migrate files for the postgres driver
//
//go:embed postgres/*.sql
var Postgres embed.FS
