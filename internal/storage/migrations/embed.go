package migrations

import "embed"

// FS holds the numbered SQL scripts, applied in order.
//
//go:embed scripts/*.sql
var FS embed.FS
