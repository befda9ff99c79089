// Package channel implements the three real-time channels built on
// connection.Manager: notifications, per-project chat, and payment status.
//
// Each channel decodes inbound frames into a closed set of frame types and
// dispatches every frame to exactly one method of the channel's handler
// interface. A new server frame kind needs a new frame type, a new decode
// case and a new handler method, so handlers that miss it fail to compile.
// Frames with an unrecognised type are logged and dropped.
//
// A channel has one subscriber at a time. SetHandler replaces the previous
// one, so a view that remounts never leaves a stale handler attached.
package channel
