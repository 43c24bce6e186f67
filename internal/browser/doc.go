// Package browser drives the registry edit form with headless Chrome.
//
// Each worker gets its own Chrome process restored from a recorded session
// (storage state JSON). Every claimed item runs in a fresh tab: search by
// business key, open the edit form, detect the states that end processing
// early (locked by another user, approval pending, already submitted), fill
// the form from the item payload and submit. Failures are classified into
// submit outcomes; the package never touches the queue.
package browser
