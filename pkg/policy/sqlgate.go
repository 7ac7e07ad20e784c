// Package policy gates planned tool actions before execution. The SQL gate
// parses candidate queries to an AST and enforces SELECT-only, single
// statement, table allowlist, a forbidden-function text scan, and mandatory
// LIMIT injection. The tool gate bounds whole plans; the engine composes
// both into per-action decisions.
package policy

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/xwb1989/sqlparser"
)

// SQLPolicyConfig configures the SQL safety gate.
type SQLPolicyConfig struct {
	MaxRows            int64
	AllowedTables      []string
	AllowedColumns     []string // reserved; column-level filtering is not enforced yet
	ForbiddenFunctions []string
}

// SQLCheckResult is the gate's verdict for one candidate query. When Valid
// is true, SanitizedSQL is the exact statement to dispatch: re-serialized
// from the AST (comments dropped, keywords normalized) with a LIMIT clause
// bounded by EffectiveLimit.
type SQLCheckResult struct {
	Valid            bool
	SanitizedSQL     string
	EffectiveLimit   int64
	ReferencedTables []string
	Errors           []string
}

// SafetyError is a recoverable, user-actionable parse failure. The SQL is
// never executed.
type SafetyError struct {
	Message string
}

func (e *SafetyError) Error() string { return e.Message }

// SQLGate validates candidate SQL with AST inspection as the primary check
// and a case-insensitive text scan as a layered second line.
type SQLGate struct {
	cfg    SQLPolicyConfig
	logger *slog.Logger
}

// NewSQLGate creates a gate for the given policy. A nil logger falls back
// to slog.Default.
func NewSQLGate(cfg SQLPolicyConfig, logger *slog.Logger) *SQLGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLGate{cfg: cfg, logger: logger}
}

// Check validates one candidate query. A non-nil error is returned only for
// parse failures (SafetyError); policy violations are reported through
// SQLCheckResult.Errors so the pipeline can surface them without aborting.
func (g *SQLGate) Check(sql string) (SQLCheckResult, error) {
	result := SQLCheckResult{EffectiveLimit: g.cfg.MaxRows}

	trimmed := strings.TrimSpace(sql)
	trimmed = strings.TrimRight(trimmed, "; \t\n")
	if trimmed == "" {
		return result, &SafetyError{Message: "empty SQL statement"}
	}

	pieces, err := sqlparser.SplitStatementToPieces(trimmed)
	if err != nil {
		return result, &SafetyError{Message: "SQL parse failed: " + err.Error()}
	}
	if len(pieces) != 1 {
		result.Errors = append(result.Errors, "Multiple statements are not permitted")
		return result, nil
	}

	stmt, err := sqlparser.Parse(trimmed)
	if err != nil {
		return result, &SafetyError{Message: "SQL parse failed: " + err.Error()}
	}

	sel, ok := stmt.(*sqlparser.Select)
	if !ok {
		result.Errors = append(result.Errors, "only SELECT statements are permitted")
		return result, nil
	}

	result.ReferencedTables = collectTables(sel.From)
	g.checkTables(&result)
	g.scanForbidden(trimmed, &result)
	result.SanitizedSQL, result.EffectiveLimit = g.enforceLimit(sel)

	result.Valid = len(result.Errors) == 0
	return result, nil
}

// checkTables enforces the table allowlist. An empty allowlist is
// permissive; that concession is logged so it is visible outside local
// development.
func (g *SQLGate) checkTables(result *SQLCheckResult) {
	if len(g.cfg.AllowedTables) == 0 {
		g.logger.Warn("SQL table allowlist is empty, all tables permitted",
			"referenced_tables", result.ReferencedTables)
		return
	}
	allowed := make(map[string]struct{}, len(g.cfg.AllowedTables))
	for _, t := range g.cfg.AllowedTables {
		allowed[strings.ToLower(t)] = struct{}{}
	}
	for _, table := range result.ReferencedTables {
		if _, ok := allowed[strings.ToLower(table)]; !ok {
			result.Errors = append(result.Errors,
				fmt.Sprintf("table %q is not in the allowlist", table))
		}
	}
}

// scanForbidden is a defence-in-depth substring scan over the raw SQL text,
// explicitly additional to AST inspection.
func (g *SQLGate) scanForbidden(sql string, result *SQLCheckResult) {
	lower := strings.ToLower(sql)
	for _, fn := range g.cfg.ForbiddenFunctions {
		if fn == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(fn)) {
			result.Errors = append(result.Errors,
				fmt.Sprintf("forbidden function or keyword %q", fn))
		}
	}
}

// enforceLimit guarantees exactly one bounded LIMIT. Literal limits within
// bounds are kept; oversized, missing, or non-literal limits are replaced
// with maxRows. The dispatched statement is always re-serialized from the
// AST, so raw text (comments included) can never carry an unbounded or
// over-limit clause past the gate.
func (g *SQLGate) enforceLimit(sel *sqlparser.Select) (string, int64) {
	maxRows := g.cfg.MaxRows
	effective := maxRows

	bounded := false
	if sel.Limit != nil {
		if v, ok := sel.Limit.Rowcount.(*sqlparser.SQLVal); ok && v.Type == sqlparser.IntVal {
			if n, err := strconv.ParseInt(string(v.Val), 10, 64); err == nil && n <= maxRows {
				effective = n
				bounded = true
			}
		}
	}
	if !bounded {
		if sel.Limit == nil {
			sel.Limit = &sqlparser.Limit{}
		}
		sel.Limit.Rowcount = sqlparser.NewIntVal([]byte(strconv.FormatInt(maxRows, 10)))
	}
	return sqlparser.String(sel), effective
}

// collectTables walks FROM clauses, recursing into join operands and
// derived-table subqueries, and returns the deduplicated, sorted set of
// referenced base-table names.
func collectTables(from sqlparser.TableExprs) []string {
	seen := make(map[string]struct{})
	var walk func(exprs sqlparser.TableExprs)

	var walkExpr func(expr sqlparser.TableExpr)
	walkExpr = func(expr sqlparser.TableExpr) {
		switch node := expr.(type) {
		case *sqlparser.AliasedTableExpr:
			switch simple := node.Expr.(type) {
			case sqlparser.TableName:
				name := simple.Name.String()
				if name != "" {
					seen[name] = struct{}{}
				}
			case *sqlparser.Subquery:
				walkSelect(simple.Select, walk)
			}
		case *sqlparser.JoinTableExpr:
			walkExpr(node.LeftExpr)
			walkExpr(node.RightExpr)
		case *sqlparser.ParenTableExpr:
			walk(node.Exprs)
		}
	}

	walk = func(exprs sqlparser.TableExprs) {
		for _, expr := range exprs {
			walkExpr(expr)
		}
	}
	walk(from)

	tables := make([]string, 0, len(seen))
	for name := range seen {
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables
}

// walkSelect descends into the FROM clauses of a (possibly compound)
// select statement.
func walkSelect(stmt sqlparser.SelectStatement, walk func(sqlparser.TableExprs)) {
	switch node := stmt.(type) {
	case *sqlparser.Select:
		walk(node.From)
	case *sqlparser.Union:
		walkSelect(node.Left, walk)
		walkSelect(node.Right, walk)
	case *sqlparser.ParenSelect:
		walkSelect(node.Select, walk)
	}
}
