// Package database opens the PostgreSQL pool backing the write journal.
//
// The journal is optional. Displays run without a database unless
// database.host is configured.
package database
