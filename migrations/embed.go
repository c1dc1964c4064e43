// Package migrations ships the goose SQL migrations inside the binary.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
