package migrations

import "embed"

// Files holds the result store schema migrations, applied in filename order.
//
//go:embed *.sql
var Files embed.FS
