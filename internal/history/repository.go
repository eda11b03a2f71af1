// Package history provides access to the runs table, a per-operation
// trail of what the housekeeper has done and with what outcome.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Run represents a single completed operation.
type Run struct {
	ID        string         `json:"id"`
	Operation string         `json:"operation"`
	OK        bool           `json:"ok"`
	Counts    map[string]int `json:"counts,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter controls which runs to return.
type Filter struct {
	Operation string // optional: filter by operation (audit, plan, apply, rollback)
	Limit     int    // default 50, max 200
	Offset    int    // pagination offset
}

// ListResult contains the paginated run results.
type ListResult struct {
	Runs   []Run `json:"runs"`
	Total  int   `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// SQLiteRepository reads and writes run history in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new run history repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// RecordRun inserts one run row. It satisfies the engine's Recorder
// contract.
func (r *SQLiteRepository) RecordRun(ctx context.Context, operation string, ok bool, counts map[string]int, details map[string]any) error {
	run := Run{
		ID:        "run-" + uuid.NewString()[:8],
		Operation: operation,
		OK:        ok,
		Counts:    counts,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}

	var countsJSON any
	if run.Counts != nil {
		b, err := json.Marshal(run.Counts)
		if err != nil {
			return fmt.Errorf("marshalling run counts: %w", err)
		}
		countsJSON = string(b)
	}
	var detailsJSON any
	if run.Details != nil {
		b, err := json.Marshal(run.Details)
		if err != nil {
			return fmt.Errorf("marshalling run details: %w", err)
		}
		detailsJSON = string(b)
	}

	okInt := 0
	if run.OK {
		okInt = 1
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, operation, ok, counts, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Operation, okInt, countsJSON, detailsJSON,
		run.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	return nil
}

// List returns runs matching the filter, ordered by most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	// Clamp limit.
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Operation != "" {
		conditions = append(conditions, "operation = ?")
		args = append(args, filter.Operation)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM runs %s", where)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting runs: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT id, operation, ok, counts, details, created_at FROM runs %s ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var okInt int
		var countsJSON, detailsJSON sql.NullString
		var createdAt string

		if err := rows.Scan(&run.ID, &run.Operation, &okInt,
			&countsJSON, &detailsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}

		run.OK = okInt != 0
		if countsJSON.Valid && countsJSON.String != "" {
			var counts map[string]int
			if json.Unmarshal([]byte(countsJSON.String), &counts) == nil {
				run.Counts = counts
			}
		}
		if detailsJSON.Valid && detailsJSON.String != "" {
			var details map[string]any
			if json.Unmarshal([]byte(detailsJSON.String), &details) == nil {
				run.Details = details
			}
		}

		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing run timestamp %q: %w", createdAt, err)
		}
		run.CreatedAt = t

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}

	if runs == nil {
		runs = []Run{}
	}

	return &ListResult{
		Runs:   runs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}
