package migrations

import "embed"

// FS holds the engine's own bookkeeping migrations. Collection tables are not
// created here; they come from the caller's upgrade callback.
//
//go:embed *.sql
var FS embed.FS
