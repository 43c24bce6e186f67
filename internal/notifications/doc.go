// Package notifications posts worker pool run reports to an ntfy topic.
//
// A run announces how many items were waiting when it started and what it
// resolved when it finished; fatal run errors are sent at high priority.
// With no topic configured NewService returns a no-op implementation, so
// callers never check whether notifications are enabled.
package notifications
