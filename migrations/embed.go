// Package migrations embeds the PostgreSQL schema so cmd/migrate can run
// from any working directory.
package migrations

import "embed"

// FS holds every *.sql migration, applied in lexical order.
//
//go:embed *.sql
var FS embed.FS
