// Package db provides the embedded PostgreSQL schema.
package db

import _ "embed"

var (
	//go:embed migrations/001_schema.sql
	base string
	//go:embed migrations/002_taxonomy.sql
	taxonomy string
)

// Schema contains the DDL statements for all application tables, in
// migration order. Every statement is idempotent.
var Schema = base + "\n" + taxonomy
