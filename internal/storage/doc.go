// Package storage persists alertbot state.
//
// It holds subscriptions, one-shot threshold alerts, the append-only delivery
// log read by the digest, per-source cursors and the operator audit log.
// Two drivers implement Store: "sqlite" (modernc, pure Go) and "memory".
package storage
