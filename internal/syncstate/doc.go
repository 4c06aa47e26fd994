// Package syncstate classifies upstream/downstream links from their version counters.
//
// Everything here is pure and deterministic. Missing counters are read as
// "never synced" and nothing in this package returns an error for malformed
// input. The server-supplied ready_to_sync flag is advisory: when it disagrees
// with [IsOutOfSync] the recomputed value wins and the disagreement is recorded
// on the [AnnotatedLink].
//
// The one stateful piece is [Alerts], which compares the current staleness count
// of a course with the count the author last dismissed.
package syncstate
