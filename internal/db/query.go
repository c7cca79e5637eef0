package db

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Op identifies a comparison operator for a filter condition.
type Op string

// Supported condition operators.
const (
	OpEq        Op = "eq"
	OpLike      Op = "like"
	OpGt        Op = "gt"
	OpGte       Op = "gte"
	OpLt        Op = "lt"
	OpLte       Op = "lte"
	OpBetween   Op = "between"
	OpNot       Op = "not"
	OpIn        Op = "in"
	OpIsNull    Op = "is_null"
	OpIsNotNull Op = "is_not_null"
)

// Cond is a single filter condition against an allow-listed column.
// A nil Value (or empty In slice) means "no constraint" and is skipped,
// except for the null-check operators which carry no value.
type Cond struct {
	Column string
	Op     Op
	Value  any
	Values []any // for OpBetween (exactly two) and OpIn
}

// Eq builds an equality condition.
func Eq(column string, value any) Cond { return Cond{Column: column, Op: OpEq, Value: value} }

// Like builds a case-sensitive substring condition (value is wrapped in %).
func Like(column string, value string) Cond {
	return Cond{Column: column, Op: OpLike, Value: value}
}

// In builds an IN (...) condition.
func In(column string, values ...any) Cond {
	return Cond{Column: column, Op: OpIn, Values: values}
}

// WhereClause is a parameterized WHERE fragment.
type WhereClause struct {
	SQL       string // empty or "WHERE ..."
	Args      []any
	NextIndex int // next positional parameter index
}

// BuildWhere turns conditions into a parameterized WHERE fragment starting at
// startIndex. Column names must appear in allowed; unknown columns are
// rejected so runtime field names can never reach the SQL text. Values are
// always bound as parameters.
func BuildWhere(conds []Cond, allowed map[string]bool, startIndex int) (WhereClause, error) {
	var clauses []string
	var args []any
	idx := startIndex

	for _, c := range conds {
		if !allowed[c.Column] {
			return WhereClause{}, fmt.Errorf("column not allowed in filter: %s", c.Column)
		}

		op := c.Op
		if op == "" {
			op = OpEq
		}

		switch op {
		case OpIsNull:
			clauses = append(clauses, fmt.Sprintf("%s IS NULL", c.Column))
		case OpIsNotNull:
			clauses = append(clauses, fmt.Sprintf("%s IS NOT NULL", c.Column))
		case OpIn:
			if len(c.Values) == 0 {
				continue
			}
			placeholders := make([]string, len(c.Values))
			for i, v := range c.Values {
				placeholders[i] = fmt.Sprintf("$%d", idx)
				args = append(args, v)
				idx++
			}
			clauses = append(clauses, fmt.Sprintf("%s IN (%s)", c.Column, strings.Join(placeholders, ", ")))
		case OpBetween:
			if len(c.Values) != 2 {
				return WhereClause{}, fmt.Errorf("between condition on %s requires exactly two values", c.Column)
			}
			clauses = append(clauses, fmt.Sprintf("%s BETWEEN $%d AND $%d", c.Column, idx, idx+1))
			args = append(args, c.Values[0], c.Values[1])
			idx += 2
		default:
			if c.Value == nil {
				continue
			}
			var expr string
			switch op {
			case OpEq:
				expr = fmt.Sprintf("%s = $%d", c.Column, idx)
			case OpLike:
				expr = fmt.Sprintf("%s LIKE $%d", c.Column, idx)
				c.Value = "%" + fmt.Sprintf("%v", c.Value) + "%"
			case OpGt:
				expr = fmt.Sprintf("%s > $%d", c.Column, idx)
			case OpGte:
				expr = fmt.Sprintf("%s >= $%d", c.Column, idx)
			case OpLt:
				expr = fmt.Sprintf("%s < $%d", c.Column, idx)
			case OpLte:
				expr = fmt.Sprintf("%s <= $%d", c.Column, idx)
			case OpNot:
				expr = fmt.Sprintf("%s != $%d", c.Column, idx)
			default:
				return WhereClause{}, fmt.Errorf("unsupported operator: %s", op)
			}
			clauses = append(clauses, expr)
			args = append(args, c.Value)
			idx++
		}
	}

	wc := WhereClause{Args: args, NextIndex: idx}
	if len(clauses) > 0 {
		wc.SQL = "WHERE " + strings.Join(clauses, " AND ")
	}
	return wc, nil
}

// SortKey pairs a column with a direction.
type SortKey struct {
	Column string
	Desc   bool
}

// BuildOrderBy renders an ORDER BY clause. Every column must appear in
// allowed; an empty key list yields an empty clause.
func BuildOrderBy(keys []SortKey, allowed map[string]bool) (string, error) {
	if len(keys) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if !allowed[k.Column] {
			return "", fmt.Errorf("column not allowed in sort: %s", k.Column)
		}
		dir := "ASC"
		if k.Desc {
			dir = "DESC"
		}
		parts = append(parts, k.Column+" "+dir)
	}
	return "ORDER BY " + strings.Join(parts, ", "), nil
}

// Pagination describes the page window of a paginated response.
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// NewPagination computes the pagination envelope for a 1-based page.
func NewPagination(page, limit, total int) Pagination {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(limit)))
	return Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page*limit < total,
		HasPrev:    page > 1,
	}
}

// PaginatedQueryOptions describes a paginated SELECT with a matching COUNT.
// Table, Columns, and Joins are trusted compile-time strings; only condition
// values come from callers at runtime.
type PaginatedQueryOptions struct {
	Table          string
	Columns        string
	Joins          []string
	Conds          []Cond
	AllowedColumns map[string]bool
	Sort           []SortKey
	AllowedSort    map[string]bool
	Page           int
	Limit          int
}

// BuildPaginatedQuery renders the data and count statements for opts.
// Both share the WHERE fragment and its arguments; the data statement appends
// LIMIT/OFFSET as the final two parameters.
func BuildPaginatedQuery(opts PaginatedQueryOptions) (dataSQL, countSQL string, args []any, err error) {
	where, err := BuildWhere(opts.Conds, opts.AllowedColumns, 1)
	if err != nil {
		return "", "", nil, err
	}
	orderBy, err := BuildOrderBy(opts.Sort, opts.AllowedSort)
	if err != nil {
		return "", "", nil, err
	}

	joins := strings.Join(opts.Joins, " ")
	countSQL = squeeze(fmt.Sprintf("SELECT COUNT(*) FROM %s %s %s", opts.Table, joins, where.SQL))

	page := opts.Page
	if page < 1 {
		page = 1
	}
	limit := opts.Limit
	if limit < 1 {
		limit = 20
	}
	offset := (page - 1) * limit

	dataSQL = squeeze(fmt.Sprintf("SELECT %s FROM %s %s %s %s LIMIT $%d OFFSET $%d",
		opts.Columns, opts.Table, joins, where.SQL, orderBy, where.NextIndex, where.NextIndex+1))

	args = append(where.Args, limit, offset)
	return dataSQL, countSQL, args, nil
}

// PaginatedQuery executes opts and scans each data row through scan, returning
// the rows' values and the pagination envelope. Total comes from a COUNT query
// sharing the WHERE/JOIN clauses.
func PaginatedQuery[T any](ctx context.Context, db *DB, opts PaginatedQueryOptions, scan func(row interface{ Scan(...any) error }) (T, error)) ([]T, Pagination, error) {
	dataSQL, countSQL, args, err := BuildPaginatedQuery(opts)
	if err != nil {
		return nil, Pagination{}, err
	}

	countArgs := args[:len(args)-2]
	var total int
	if err := db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to count rows: %w", err)
	}

	rows, err := db.Query(ctx, dataSQL, args...)
	if err != nil {
		return nil, Pagination{}, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, Pagination{}, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, v)
	}

	page := opts.Page
	if page < 1 {
		page = 1
	}
	limit := opts.Limit
	if limit < 1 {
		limit = 20
	}
	return out, NewPagination(page, limit, total), nil
}

// BuildUpsert renders an INSERT ... ON CONFLICT statement for data. Column
// names must appear in allowed. When updateColumns is nil, every non-conflict
// column is updated from EXCLUDED; when no updatable column remains the
// statement degrades to DO NOTHING.
func BuildUpsert(table string, data map[string]any, conflictColumns []string, updateColumns []string, allowed map[string]bool) (string, []any, error) {
	if len(data) == 0 {
		return "", nil, fmt.Errorf("upsert into %s requires at least one column", table)
	}

	columns := make([]string, 0, len(data))
	for col := range data {
		if !allowed[col] {
			return "", nil, fmt.Errorf("column not allowed in upsert: %s", col)
		}
		columns = append(columns, col)
	}
	sort.Strings(columns) // deterministic statement text

	args := make([]any, 0, len(columns))
	placeholders := make([]string, 0, len(columns))
	for i, col := range columns {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, data[col])
	}

	conflictSet := make(map[string]bool, len(conflictColumns))
	for _, col := range conflictColumns {
		conflictSet[col] = true
	}

	updates := updateColumns
	if updates == nil {
		for _, col := range columns {
			if !conflictSet[col] {
				updates = append(updates, col)
			}
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s)",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "),
		strings.Join(conflictColumns, ", "))

	if len(updates) == 0 {
		b.WriteString(" DO NOTHING")
	} else {
		setClauses := make([]string, 0, len(updates))
		for _, col := range updates {
			if !allowed[col] {
				return "", nil, fmt.Errorf("column not allowed in upsert update: %s", col)
			}
			setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
		b.WriteString(" DO UPDATE SET " + strings.Join(setClauses, ", "))
	}

	return b.String(), args, nil
}

// BulkUpdateItem pairs filter conditions with the columns to set.
type BulkUpdateItem struct {
	Conds []Cond
	Set   map[string]any
}

// BulkUpdate applies every item inside one transaction; any failure rolls
// back the whole batch. Returns the number of rows affected.
func (db *DB) BulkUpdate(ctx context.Context, table string, items []BulkUpdateItem, allowed map[string]bool) (int64, error) {
	var affected int64
	err := db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, item := range items {
			where, err := BuildWhere(item.Conds, allowed, 1)
			if err != nil {
				return err
			}

			setCols := make([]string, 0, len(item.Set))
			for col := range item.Set {
				if !allowed[col] {
					return fmt.Errorf("column not allowed in update: %s", col)
				}
				setCols = append(setCols, col)
			}
			sort.Strings(setCols)

			idx := where.NextIndex
			args := append([]any{}, where.Args...)
			setClauses := make([]string, 0, len(setCols))
			for _, col := range setCols {
				setClauses = append(setClauses, fmt.Sprintf("%s = $%d", col, idx))
				args = append(args, item.Set[col])
				idx++
			}

			sql := squeeze(fmt.Sprintf("UPDATE %s SET %s %s",
				table, strings.Join(setClauses, ", "), where.SQL))
			tag, err := tx.Exec(ctx, sql, args...)
			if err != nil {
				return fmt.Errorf("bulk update failed: %w", err)
			}
			affected += tag.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// squeeze collapses runs of whitespace so generated SQL stays readable in logs.
func squeeze(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
