// Package pgstore implements queue.Store on PostgreSQL with pgx.
//
// This is the fleet backend: any number of worker processes on any number of
// hosts share one direktori_ids table. Claims select the next new row with
// FOR UPDATE SKIP LOCKED inside a transaction, so concurrent claimants pass
// over rows another transaction holds instead of waiting on them. No lock is
// held after Claim returns.
package pgstore
