// Package workflow runs worker pools against the shared work queue.
//
// A Manager starts a fixed number of workers. Each worker owns one Submitter
// and loops: claim one item, submit it under the retry policy, reconcile the
// outcome with exactly one store update, repeat. A worker exits when Claim
// reports the queue empty, so the pool is finished once every worker has seen
// an empty queue. No state is shared between workers beyond the store.
//
// Cancellation is observed between items only. An item already claimed is
// submitted and reconciled on a context detached from the caller, bounded by
// the drain timeout, so shutdown does not leave rows in in_progress.
//
// Rows abandoned by a crashed process are the one failure a worker cannot
// recover itself. When a stale claim timeout is configured the Manager
// refreshes last_updated on live claims and periodically returns older
// in_progress rows to new.
package workflow
