package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// Generic row-level operations used by the transaction manager. Column names
// come from trusted step definitions, never from request input; values are
// always bound as parameters.

func sortedColumns(values map[string]interface{}) []string {
	cols := make([]string, 0, len(values))
	for col := range values {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// GetRow fetches one row by primary-key match as a column map. Returns nil
// when no row matches.
func (s *PostgresStore) GetRow(ctx context.Context, table, keyColumn string, key interface{}) (map[string]interface{}, error) {
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = $1", table, keyColumn)

	rows, err := s.db.QueryContext(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get row from %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns from %s: %w", table, err)
	}

	if !rows.Next() {
		return nil, rows.Err()
	}

	raw := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("failed to scan row from %s: %w", table, err)
	}

	row := make(map[string]interface{}, len(cols))
	for i, col := range cols {
		if b, ok := raw[i].([]byte); ok {
			row[col] = string(b)
		} else {
			row[col] = raw[i]
		}
	}
	return row, nil
}

// InsertRow inserts values as one row
func (s *PostgresStore) InsertRow(ctx context.Context, table string, values map[string]interface{}) error {
	cols := sortedColumns(values)
	placeholders := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, col := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = values[col]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

// UpdateRow updates the row matching keyColumn = key
func (s *PostgresStore) UpdateRow(ctx context.Context, table, keyColumn string, key interface{}, values map[string]interface{}) error {
	cols := sortedColumns(values)
	sets := make([]string, len(cols))
	args := make([]interface{}, 0, len(cols)+1)
	for i, col := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", col, i+1)
		args = append(args, values[col])
	}
	args = append(args, key)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		table, strings.Join(sets, ", "), keyColumn, len(cols)+1)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteRow deletes the row matching keyColumn = key
func (s *PostgresStore) DeleteRow(ctx context.Context, table, keyColumn string, key interface{}) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", table, keyColumn)
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return nil
}

// UpsertRow inserts values, updating the existing row on key conflict
func (s *PostgresStore) UpsertRow(ctx context.Context, table, keyColumn string, key interface{}, values map[string]interface{}) error {
	if _, ok := values[keyColumn]; !ok {
		values[keyColumn] = key
	}
	cols := sortedColumns(values)
	placeholders := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	var sets []string
	for i, col := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = values[col]
		if col != keyColumn {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "),
		keyColumn, strings.Join(sets, ", "))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert into %s: %w", table, err)
	}
	return nil
}
