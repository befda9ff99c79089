// Package journal records delivered frames in PostgreSQL.
//
// Writer is a connection.Observer. Received frames are queued in memory and
// written in batches with COPY, either when a batch fills or on the flush
// interval. Database failures are logged and never reach the live channels.
package journal
