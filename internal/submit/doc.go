// Package submit defines the boundary between the queue core and whatever
// drives the registry edit form for one work item.
//
// A Submitter never returns a Go error for business results. Every result,
// including failures, is an Outcome whose Kind decides how the worker
// reconciles the item. Submitters are not shared: the workflow asks a Factory
// for one per worker and closes it when the worker exits.
package submit
