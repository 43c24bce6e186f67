// Package preflight provides readiness checks for the services and files a
// worker pool depends on.
//
// The run command calls RunAll before starting workers and refuses to start
// when a required check fails; the preflight command prints every result.
// Checks report a Result rather than an error so callers can render all of
// them at once.
package preflight
