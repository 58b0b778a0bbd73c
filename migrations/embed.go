// Package migrations embeds the command journal schema.
package migrations

import "embed"

// FS holds every migration file at its root; pass "." as the directory.
//
//go:embed *.sql
var FS embed.FS
