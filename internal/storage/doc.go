// Package storage provides credentials.Store implementations: an in-memory
// map for development and a database/sql backed store for PostgreSQL,
// MySQL and SQLite.
package storage
