package exec

import (
	"context"
	"database/sql"
	"strings"

	"github.com/nbaghiro/flowmaestro/workflow"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// handleDatabase runs one SQL statement against a configured database.
//
// Config:
//   - driver: "sqlite" or "mysql" (required)
//   - dsn: driver-specific connection string (required)
//   - query: SQL text, with templates already substituted (required)
//   - args: positional query arguments
//
// SELECT-like statements produce {"rows": [...], "count": n}; everything
// else produces {"rowsAffected": n}. The connection is opened per
// invocation; database nodes are expected to be rare within a workflow, and
// pooling across executions belongs to a custom handler.
func handleDatabase(ctx context.Context, req Request) workflow.Result {
	driver, _ := req.Config["driver"].(string)
	dsn, _ := req.Config["dsn"].(string)
	query, _ := req.Config["query"].(string)
	if driver == "" || dsn == "" || query == "" {
		return failf("database %s: driver, dsn, and query are required", req.Meta.NodeID)
	}
	if driver != "sqlite" && driver != "mysql" {
		return failf("database %s: unsupported driver %q", req.Meta.NodeID, driver)
	}

	var args []any
	if raw, ok := req.Config["args"].([]any); ok {
		args = raw
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return failf("database %s: open: %v", req.Meta.NodeID, err)
	}
	defer func() { _ = db.Close() }()

	if isQueryStatement(query) {
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return failf("database %s: query: %v", req.Meta.NodeID, err)
		}
		defer func() { _ = rows.Close() }()
		out, err := scanRows(rows)
		if err != nil {
			return failf("database %s: scan: %v", req.Meta.NodeID, err)
		}
		return workflow.Result{Success: true, Output: map[string]any{
			"rows":  out,
			"count": len(out),
		}}
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return failf("database %s: exec: %v", req.Meta.NodeID, err)
	}
	affected, _ := res.RowsAffected()
	return workflow.Result{Success: true, Output: map[string]any{
		"rowsAffected": affected,
	}}
}

func isQueryStatement(query string) bool {
	head := strings.ToLower(strings.TrimSpace(query))
	return strings.HasPrefix(head, "select") || strings.HasPrefix(head, "with") ||
		strings.HasPrefix(head, "pragma") || strings.HasPrefix(head, "show")
}

// scanRows materializes a result set as []any of map[string]any, the shape
// templates can address with {{Node.rows.0.column}}.
func scanRows(rows *sql.Rows) ([]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
