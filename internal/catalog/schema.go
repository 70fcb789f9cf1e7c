package catalog

import _ "embed"

// Schema is the full catalog schema as a single SQL script, extracted from
// the migrations. Regenerate with `go generate ./internal/catalog` after
// adding a migration. Tests apply it directly instead of running migrations.
//
//go:embed schema.sql
var Schema string
