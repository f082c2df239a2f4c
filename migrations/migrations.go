// Package migrations embeds the SQL schema for each supported database.
package migrations

import "embed"

// Postgres contains the golang-migrate files for PostgreSQL with pgvector.
//
//go:embed postgres/*.sql
var Postgres embed.FS

// SQLite contains the migration files for the embedded SQLite store.
//
//go:embed sqlite/*.sql
var SQLite embed.FS
