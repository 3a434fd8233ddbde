// Package db embeds the schema and the bundled fixtures.
package db

import _ "embed"

// Schema is the idempotent DDL applied at startup.
//
//go:embed migrations/001_schema.sql
var Schema string

// Fixtures is the default seed dataset, used by the memory backend when no
// seed files are configured.
//
//go:embed seed/ogani.json
var Fixtures string
