// Package notifier is the delivery channel for alerts.
//
// Deliver sends one message to one recipient under a shared rate limit and a
// per-message timeout, and reports the outcome as a Result instead of
// failing the caller. Fan-out loops keep going on a failed Result.
package notifier
