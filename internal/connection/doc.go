// Package connection implements the Connection Manager component.
//
// A Manager owns one duplex WebSocket for one channel:
//   - Opens the socket and remembers {url, params} for replay on reconnect
//   - Parses inbound JSON frames and dispatches them by "type"
//   - Serialises outbound {type, ...data} envelopes while open, drops them otherwise
//   - Reconnects with linear backoff (base × attempt) up to a fixed attempt cap
//
// It has no knowledge of message semantics; channel adapters build on it.
// Every callback runs as a turn of a shared loop.Loop.
package connection
