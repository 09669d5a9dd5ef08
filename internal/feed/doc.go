// Package feed adapts external providers into Announcements and quotes.
//
// Sources return items newest-first. Transport failures never panic or
// escalate: a poll that fails yields no items, the caller's cursor unchanged,
// and an error classified with the sentinels below.
package feed
