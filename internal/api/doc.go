// Package api provides a client for the escrow platform's REST read
// endpoints used to seed the store before the live channels take over.
//
// Responses may be plain JSON arrays or paginated envelopes
// ({count, next, previous, results}); list calls follow "next" links until
// exhausted. 5xx and 429 responses are retried with jittered exponential
// backoff.
package api
