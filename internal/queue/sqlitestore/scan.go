package sqlitestore

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"direktori/internal/queue"
)

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var itemColumns = "id, idsbr, automation_status, assigned_to, attempt_count, first_taken_at, last_updated, error, " +
	strings.Join(queue.PayloadColumns, ", ")

func scanItem(scanner interface{ Scan(dest ...any) error }) (*queue.WorkItem, error) {
	var (
		id            int64
		businessKey   string
		statusStr     string
		assignedTo    sql.NullString
		attemptCount  int
		firstTakenRaw sql.NullString
		updatedRaw    string
		errorText     sql.NullString
	)
	payload := make([]sql.NullString, len(queue.PayloadColumns))
	dest := []any{&id, &businessKey, &statusStr, &assignedTo, &attemptCount, &firstTakenRaw, &updatedRaw, &errorText}
	for i := range payload {
		dest = append(dest, &payload[i])
	}
	if err := scanner.Scan(dest...); err != nil {
		return nil, err
	}

	item := &queue.WorkItem{
		ID:           id,
		BusinessKey:  businessKey,
		Status:       queue.Status(statusStr),
		AssignedTo:   assignedTo.String,
		AttemptCount: attemptCount,
		Error:        errorText.String,
	}
	for i, field := range item.Payload.Fields() {
		*field = payload[i].String
	}
	if updated, err := parseTime(updatedRaw); err == nil {
		item.LastUpdated = updated
	}
	if firstTakenRaw.Valid {
		if taken, err := parseTime(firstTakenRaw.String); err == nil {
			item.FirstTakenAt = &taken
		}
	}
	return item, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
