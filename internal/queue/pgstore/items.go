package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"direktori/internal/queue"
)

// Insert adds a new item in status new.
func (s *Store) Insert(ctx context.Context, businessKey string, payload queue.Payload) (*queue.WorkItem, error) {
	businessKey = strings.TrimSpace(businessKey)
	if businessKey == "" {
		return nil, queue.ErrEmptyBusinessKey
	}
	columns := append([]string{"idsbr"}, queue.PayloadColumns...)
	placeholders := make([]string, len(columns))
	for i := range placeholders {
		placeholders[i] = "$" + strconv.Itoa(i+1)
	}
	args := []any{businessKey}
	for _, field := range payload.Fields() {
		args = append(args, nullableString(strings.TrimSpace(*field)))
	}
	query := "INSERT INTO direktori_ids (" + strings.Join(columns, ", ") + ") VALUES (" +
		strings.Join(placeholders, ", ") + ") RETURNING " + itemColumns("")

	item, err := scanItem(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		mapped := mapPgErr(err)
		if errors.Is(mapped, queue.ErrDuplicateKey) {
			return nil, fmt.Errorf("insert %s: %w", businessKey, queue.ErrDuplicateKey)
		}
		return nil, fmt.Errorf("insert %s: %w", businessKey, mapped)
	}
	return item, nil
}

// GetByID fetches a single item by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*queue.WorkItem, error) {
	item, err := scanItem(s.pool.QueryRow(ctx,
		"SELECT "+itemColumns("")+" FROM direktori_ids WHERE id = $1", id))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item %d: %w", id, mapPgErr(err))
	}
	return item, nil
}

// GetByBusinessKey fetches a single item by its idsbr.
func (s *Store) GetByBusinessKey(ctx context.Context, businessKey string) (*queue.WorkItem, error) {
	item, err := scanItem(s.pool.QueryRow(ctx,
		"SELECT "+itemColumns("")+" FROM direktori_ids WHERE idsbr = $1::text LIMIT 1", strings.TrimSpace(businessKey)))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", businessKey, mapPgErr(err))
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
		args = append(args, statusStrings(filter.Statuses))
		clauses = append(clauses, "automation_status = ANY($"+strconv.Itoa(len(args))+")")
	}
	if filter.AssignedTo != "" {
		args = append(args, filter.AssignedTo)
		clauses = append(clauses, "assigned_to = $"+strconv.Itoa(len(args)))
	}
	query := "SELECT " + itemColumns("") + " FROM direktori_ids"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", mapPgErr(err))
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
	rows, err := s.pool.Query(ctx,
		`SELECT automation_status, COUNT(1) FROM direktori_ids GROUP BY automation_status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", mapPgErr(err))
	}
	defer rows.Close()

	stats := make(map[queue.Status]int)
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[queue.Status(status)] = int(count)
	}
	return stats, rows.Err()
}
