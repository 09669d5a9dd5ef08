// Package alert is the dispatch engine.
//
// It owns the subscription index, per-source cursors, the announcement
// pipeline (poll, dedup, match, fan-out, record), one-shot threshold
// evaluation and the daily digest. Callers trigger each job from their own
// scheduler; every job is safe to run concurrently with the others.
package alert
