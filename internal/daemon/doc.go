// Package daemon owns the lifecycle of a running worker pool on one host.
//
// It holds a flock-based lock per pool name so two processes on the same
// machine never share worker identities, runs the workflow manager until the
// queue drains or the context is cancelled, and exposes a status snapshot for
// operator commands. Claiming, submitting and reconciling live in the
// workflow package; the daemon only coordinates startup and shutdown.
package daemon
