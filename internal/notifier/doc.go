// Package notifier delivers relay alerts to a chat sink.
//
// Delivery is synchronous: Notify returns once the sink has accepted or
// rejected the message, so the caller can report the result. A failed post
// is never retried.
//
// # Throttling
//
// A token bucket (golang.org/x/time/rate) caps the outbound rate so a burst of
// task events cannot exceed the chat API limits. Waiting for a token honors
// the caller's context.
//
// # History
//
// For operator visibility the service keeps a small in-memory history of
// recent deliveries, successful or not.
package notifier
