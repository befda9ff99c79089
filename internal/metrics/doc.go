// Package metrics provides Prometheus metrics for the realtime channels.
//
// Key metrics:
//   - Connection state per channel
//   - Reconnect attempts and give-ups
//   - Inbound frames by type and dropped frames by reason
//   - Outbound messages and sends dropped while disconnected
//
// Metrics implements connection.Observer, so it plugs straight into every
// channel's manager.
package metrics
