package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"direktori/internal/queue"
)

// Insert adds a new item in status new.
func (s *Store) Insert(ctx context.Context, businessKey string, payload queue.Payload) (*queue.WorkItem, error) {
	businessKey = strings.TrimSpace(businessKey)
	if businessKey == "" {
		return nil, queue.ErrEmptyBusinessKey
	}
	ctx = ensureContext(ctx)

	columns := append([]string{"idsbr", "automation_status", "attempt_count", "last_updated"}, queue.PayloadColumns...)
	args := []any{businessKey, queue.StatusNew, 0, formatTime(s.now())}
	for _, field := range payload.Fields() {
		args = append(args, nullableString(strings.TrimSpace(*field)))
	}
	query := "INSERT INTO direktori_ids (" + strings.Join(columns, ", ") + ") VALUES (" +
		makePlaceholders(len(columns)) + ") RETURNING " + itemColumns

	var item *queue.WorkItem
	err := retryOnBusy(ctx, func() error {
		var scanErr error
		item, scanErr = scanItem(s.db.QueryRowContext(ctx, query, args...))
		return scanErr
	})
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("insert %s: %w", businessKey, queue.ErrDuplicateKey)
	}
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", businessKey, err)
	}
	return item, nil
}

// GetByID fetches a single item by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*queue.WorkItem, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+itemColumns+" FROM direktori_ids WHERE id = ?", id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item %d: %w", id, err)
	}
	return item, nil
}

// GetByBusinessKey fetches a single item by its idsbr.
func (s *Store) GetByBusinessKey(ctx context.Context, businessKey string) (*queue.WorkItem, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+itemColumns+" FROM direktori_ids WHERE idsbr = ?", strings.TrimSpace(businessKey))
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", businessKey, err)
	}
	return item, nil
}

// List returns items matching filter ordered by id.
func (s *Store) List(ctx context.Context, filter queue.ListFilter) ([]*queue.WorkItem, error) {
	var (
		clauses []string
		args    []any
	)
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "automation_status IN ("+makePlaceholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	if filter.AssignedTo != "" {
		clauses = append(clauses, "assigned_to = ?")
		args = append(args, filter.AssignedTo)
	}
	query := "SELECT " + itemColumns + " FROM direktori_ids"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*queue.WorkItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Stats returns a count of items grouped by status.
func (s *Store) Stats(ctx context.Context) (map[queue.Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT automation_status, COUNT(1) FROM direktori_ids GROUP BY automation_status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[queue.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[queue.Status(status)] = count
	}
	return stats, rows.Err()
}
