// Package broadcast sends one stored campaign to a snapshot of a tenant's
// subscribers.
//
// Start and Resend check preconditions synchronously and flip the campaign to
// "sending"; the send loop then runs in the background under the service
// supervisor. Callers follow progress through the stored status and counter,
// or through Status for the in-memory view of the latest run.
//
// Delivery semantics
//
// The loop is sequential and paced by a rate limiter. A failed recipient is
// logged and skipped; it is not retried within the run, and it never turns
// the campaign "failed". That status is reserved for runs that could not
// start at all because the tenant has no live bot session.
//
// Shutdown cancels in-flight loops. The counter keeps what was sent; the
// campaign stays "sending" until an operator calls Resend.
package broadcast
