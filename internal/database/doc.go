// Package database builds the PostgreSQL connection pool used by the frame
// journal.
//
// The realtime client keeps its working state in memory; Postgres only
// receives an append-only audit of delivered frames, so one pool is enough.
package database
