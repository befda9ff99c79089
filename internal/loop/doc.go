// Package loop provides the single-threaded event loop every realtime channel runs on.
//
// Socket callbacks (open, message, close, error), reconnect timers and store
// mutations are posted to one Loop and executed as discrete, non-overlapping
// turns in post order. Post never blocks: turns are held in an unbounded Queue
// so a slow subscriber cannot stall a socket read loop.
package loop
