// Package bridge connects the channels to the store.
//
// Every channel event becomes exactly one store mutation, applied on the
// event loop so mutations land in arrival order. The bridge also owns channel
// lifecycle: Session connects notifications for the length of a login,
// ChatBridge keeps at most one conversation open, and PaymentBridge lives for
// one payment-confirmation view.
package bridge
