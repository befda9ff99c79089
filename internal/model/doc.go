// Package model defines the entities held in the client-side store and carried
// in channel frames.
//
// Field names follow the platform's JSON wire format (snake_case tags).
//
// Conventions:
//   - IDs: int64 server primary keys; chat messages may instead carry a
//     client-generated correlation id before the server acknowledges them
//   - Timestamps: time.Time parsed from RFC 3339; zero means absent
//   - Amounts: decimal strings exactly as the server sends them
package model
