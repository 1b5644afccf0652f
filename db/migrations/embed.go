package migrations

import "embed"

// Files holds the ordered schema migrations applied by cmd/api and hivectl.
//
//go:embed *.sql
var Files embed.FS
