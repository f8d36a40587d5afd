// Package migrations embeds the SQL schema migrations shipped with the binary.
package migrations

import "embed"

// FS holds the numbered *.sql migration files.
//
//go:embed *.sql
var FS embed.FS
