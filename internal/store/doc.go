// Package store holds the client-side state shared by every channel.
//
// Every collection is keyed by an identity and every mutation is a
// merge-by-id, so applying the same server event twice leaves the store
// unchanged. The store is safe for concurrent use; getters return copies.
// Mutations bump Version and publish a Change on a buffered channel that
// drops the oldest entry when full.
package store
