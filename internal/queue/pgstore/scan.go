package pgstore

import (
	"strings"
	"time"

	"direktori/internal/queue"
)

// itemColumns selects a work item with the given table alias prefix.
// Payload columns are read as text so tables created by earlier import
// tooling with numeric coordinates or codes still scan.
func itemColumns(prefix string) string {
	cols := []string{
		prefix + "id",
		prefix + "idsbr::text",
		prefix + "automation_status",
		"COALESCE(" + prefix + "assigned_to, '')",
		prefix + "attempt_count",
		prefix + "first_taken_at",
		prefix + "last_updated",
		"COALESCE(" + prefix + "error, '')",
	}
	for _, col := range queue.PayloadColumns {
		cols = append(cols, "COALESCE("+prefix+col+"::text, '')")
	}
	return strings.Join(cols, ", ")
}

func scanItem(row interface{ Scan(dest ...any) error }) (*queue.WorkItem, error) {
	var (
		item       queue.WorkItem
		status     string
		firstTaken *time.Time
	)
	dest := []any{
		&item.ID,
		&item.BusinessKey,
		&status,
		&item.AssignedTo,
		&item.AttemptCount,
		&firstTaken,
		&item.LastUpdated,
		&item.Error,
	}
	for _, field := range item.Payload.Fields() {
		dest = append(dest, field)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	item.Status = queue.Status(status)
	if firstTaken != nil {
		t := firstTaken.UTC()
		item.FirstTakenAt = &t
	}
	item.LastUpdated = item.LastUpdated.UTC()
	return &item, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func statusStrings(statuses []queue.Status) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
