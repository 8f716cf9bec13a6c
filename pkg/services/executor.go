package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/insightpilot/insight-engine/pkg/config"
	"github.com/insightpilot/insight-engine/pkg/models"
	"github.com/insightpilot/insight-engine/pkg/queryexpr"
	"github.com/insightpilot/insight-engine/pkg/tabular"
)

// ExecutionResult is the outcome of evaluating a generated expression.
// RowCount is the true match count; Rows is capped at the configured limit.
type ExecutionResult struct {
	Columns       []string
	Rows          []models.ResultRow
	RowCount      int
	ExecutionTime time.Duration
}

// QueryExecutor evaluates generated expressions against an in-memory table.
type QueryExecutor interface {
	Execute(ctx context.Context, table *tabular.Table, schema *models.SchemaDescriptor, expression string) (*ExecutionResult, error)
}

type queryExecutor struct {
	timeout   time.Duration
	maxRows   int
	maxGroups int
	logger    *zap.Logger
}

// NewQueryExecutor creates a QueryExecutor bounded by the executor config.
func NewQueryExecutor(cfg *config.ExecutorConfig, logger *zap.Logger) QueryExecutor {
	return &queryExecutor{
		timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
		maxRows:   cfg.MaxResultRows,
		maxGroups: cfg.MaxGroups,
		logger:    logger.Named("executor"),
	}
}

var _ QueryExecutor = (*queryExecutor)(nil)

// ctxCheckInterval is how many rows are processed between cancellation checks.
const ctxCheckInterval = 4096

// Execute parses, validates, and evaluates an expression. Evaluation is
// time-boxed; on timeout the result is discarded, never partially returned.
func (e *queryExecutor) Execute(
	ctx context.Context,
	table *tabular.Table,
	schema *models.SchemaDescriptor,
	expression string,
) (*ExecutionResult, error) {
	plan, err := queryexpr.Parse(expression)
	if err != nil {
		e.logger.Warn("expression rejected by grammar", zap.Error(err))
		return nil, newExecutionError(ExecDisallowedOperation, "query uses an unsupported operation", err)
	}
	if err := queryexpr.Validate(plan, schema); err != nil {
		e.logger.Warn("expression failed validation", zap.Error(err))
		return nil, newExecutionError(ExecDisallowedOperation, "query references unknown columns or unsafe values", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()

	type evalOutcome struct {
		result *ExecutionResult
		err    error
	}
	done := make(chan evalOutcome, 1)
	go func() {
		result, err := e.evaluate(ctx, table, plan)
		done <- evalOutcome{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		e.logger.Warn("query evaluation timed out",
			zap.Duration("timeout", e.timeout),
			zap.Int("rows", table.NumRows()))
		return nil, newExecutionError(ExecTimeout, "query took too long to run", ctx.Err())
	case outcome := <-done:
		if outcome.err != nil {
			if errors.Is(outcome.err, context.Canceled) || errors.Is(outcome.err, context.DeadlineExceeded) {
				return nil, newExecutionError(ExecTimeout, "query took too long to run", outcome.err)
			}
			return nil, outcome.err
		}
		outcome.result.ExecutionTime = time.Since(start)
		return outcome.result, nil
	}
}

func (e *queryExecutor) evaluate(ctx context.Context, table *tabular.Table, plan *queryexpr.Plan) (*ExecutionResult, error) {
	matched, err := filterRows(ctx, table, plan.Where)
	if err != nil {
		return nil, err
	}

	var result *ExecutionResult
	if plan.HasAggregate() || len(plan.GroupBy) > 0 {
		result, err = e.aggregate(ctx, table, plan, matched)
	} else {
		result, err = e.project(table, plan, matched)
	}
	if err != nil {
		return nil, err
	}

	if plan.OrderBy != "" {
		sortResult(result, plan.OrderBy, plan.Desc)
	}

	if plan.Limit > 0 && len(result.Rows) > plan.Limit {
		result.Rows = result.Rows[:plan.Limit]
		result.RowCount = len(result.Rows)
	}

	if result.RowCount == 0 {
		return nil, newExecutionError(ExecEmptyResult, "query matched no rows", nil)
	}

	if len(result.Rows) > e.maxRows {
		result.Rows = result.Rows[:e.maxRows]
	}

	return result, nil
}

// filterRows returns the indices of rows matching the WHERE clauses.
// AND binds tighter than OR.
func filterRows(ctx context.Context, table *tabular.Table, conds []queryexpr.Condition) ([]int, error) {
	matched := make([]int, 0, table.NumRows())
	for r := 0; r < table.NumRows(); r++ {
		if r%ctxCheckInterval == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		ok, err := rowMatches(table, r, conds)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

func rowMatches(table *tabular.Table, r int, conds []queryexpr.Condition) (bool, error) {
	if len(conds) == 0 {
		return true, nil
	}

	// Evaluate as OR-groups of AND-chains.
	groupResult := true
	anyGroup := false
	for i, cond := range conds {
		if i > 0 && cond.Connector == queryexpr.BoolOr {
			if groupResult {
				anyGroup = true
			}
			groupResult = true
		}
		if !groupResult {
			continue
		}
		ok, err := evalCondition(table, r, cond)
		if err != nil {
			return false, err
		}
		groupResult = groupResult && ok
	}
	return anyGroup || groupResult, nil
}

func evalCondition(table *tabular.Table, r int, cond queryexpr.Condition) (bool, error) {
	c, ok := table.ColumnIndex(cond.Column)
	if !ok {
		return false, newExecutionError(ExecRuntimeException,
			"query references a missing column",
			fmt.Errorf("column %q not in table", cond.Column))
	}
	cell := table.At(r, c)
	if cell.Kind == tabular.KindNull {
		return false, nil
	}

	if cond.Op == queryexpr.OpContains {
		return strings.Contains(strings.ToLower(cell.String()), strings.ToLower(cond.Value)), nil
	}

	cmp, comparable := compareCell(cell, cond.Value)
	if !comparable {
		// Incomparable values only satisfy inequality.
		return cond.Op == queryexpr.OpNeq, nil
	}

	switch cond.Op {
	case queryexpr.OpEq:
		return cmp == 0, nil
	case queryexpr.OpNeq:
		return cmp != 0, nil
	case queryexpr.OpGt:
		return cmp > 0, nil
	case queryexpr.OpGte:
		return cmp >= 0, nil
	case queryexpr.OpLt:
		return cmp < 0, nil
	case queryexpr.OpLte:
		return cmp <= 0, nil
	default:
		return false, newExecutionError(ExecRuntimeException,
			"unsupported comparison", fmt.Errorf("operator %q", cond.Op))
	}
}

// compareCell compares a cell against a raw literal in the cell's domain.
func compareCell(cell tabular.Value, literal string) (int, bool) {
	switch cell.Kind {
	case tabular.KindNumber:
		f, err := strconv.ParseFloat(strings.ReplaceAll(literal, ",", ""), 64)
		if err != nil {
			return 0, false
		}
		switch {
		case cell.Num < f:
			return -1, true
		case cell.Num > f:
			return 1, true
		default:
			return 0, true
		}
	case tabular.KindTime:
		lit := tabular.ParseValue(literal)
		if lit.Kind != tabular.KindTime {
			return 0, false
		}
		switch {
		case cell.Time.Before(lit.Time):
			return -1, true
		case cell.Time.After(lit.Time):
			return 1, true
		default:
			return 0, true
		}
	default:
		return strings.Compare(strings.ToLower(cell.Str), strings.ToLower(literal)), true
	}
}

// project returns the selected base columns of the matched rows.
func (e *queryExecutor) project(table *tabular.Table, plan *queryexpr.Plan, matched []int) (*ExecutionResult, error) {
	var cols []string
	var indices []int
	for _, item := range plan.Select {
		if item.Star {
			for i, name := range table.Columns() {
				cols = append(cols, name)
				indices = append(indices, i)
			}
			continue
		}
		c, ok := table.ColumnIndex(item.Column)
		if !ok {
			return nil, newExecutionError(ExecRuntimeException,
				"query references a missing column",
				fmt.Errorf("column %q not in table", item.Column))
		}
		cols = append(cols, item.OutputName())
		indices = append(indices, c)
	}

	rows := make([]models.ResultRow, 0, len(matched))
	for _, r := range matched {
		row := make(models.ResultRow, len(cols))
		for i, c := range indices {
			row[cols[i]] = table.At(r, c).Native()
		}
		rows = append(rows, row)
	}

	return &ExecutionResult{Columns: cols, Rows: rows, RowCount: len(matched)}, nil
}

// aggState accumulates one aggregate over one group.
type aggState struct {
	count int
	sum   float64
	min   tabular.Value
	max   tabular.Value
	seen  bool
}

func (s *aggState) add(v tabular.Value) {
	if v.Kind == tabular.KindNull {
		return
	}
	s.count++
	if v.Kind == tabular.KindNumber {
		s.sum += v.Num
	}
	if !s.seen {
		s.min, s.max, s.seen = v, v, true
		return
	}
	if cmp, ok := compareValues(v, s.min); ok && cmp < 0 {
		s.min = v
	}
	if cmp, ok := compareValues(v, s.max); ok && cmp > 0 {
		s.max = v
	}
}

func compareValues(a, b tabular.Value) (int, bool) {
	if a.Kind != b.Kind {
		return 0, false
	}
	return compareCell(a, b.String())
}

func (s *aggState) value(fn queryexpr.AggFunc) any {
	if fn == queryexpr.AggCount {
		return float64(s.count)
	}
	if !s.seen {
		return nil
	}
	switch fn {
	case queryexpr.AggSum:
		return s.sum
	case queryexpr.AggAvg:
		return s.sum / float64(s.count)
	case queryexpr.AggMin:
		return s.min.Native()
	case queryexpr.AggMax:
		return s.max.Native()
	default:
		return nil
	}
}

// aggregate evaluates grouped or whole-table aggregations.
func (e *queryExecutor) aggregate(ctx context.Context, table *tabular.Table, plan *queryexpr.Plan, matched []int) (*ExecutionResult, error) {
	groupIdx := make([]int, len(plan.GroupBy))
	for i, g := range plan.GroupBy {
		c, ok := table.ColumnIndex(g)
		if !ok {
			return nil, newExecutionError(ExecRuntimeException,
				"query references a missing column", fmt.Errorf("column %q not in table", g))
		}
		groupIdx[i] = c
	}

	type aggItem struct {
		sel queryexpr.SelectItem
		col int // -1 for count(*)
	}
	var aggs []aggItem
	for _, item := range plan.Select {
		if item.Func == queryexpr.AggNone {
			continue
		}
		col := -1
		if item.Column != "" {
			c, ok := table.ColumnIndex(item.Column)
			if !ok {
				return nil, newExecutionError(ExecRuntimeException,
					"query references a missing column", fmt.Errorf("column %q not in table", item.Column))
			}
			col = c
		}
		aggs = append(aggs, aggItem{sel: item, col: col})
	}

	type group struct {
		keys   []tabular.Value
		states []*aggState
	}
	groups := make(map[string]*group)
	order := make([]string, 0)

	for n, r := range matched {
		if n%ctxCheckInterval == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var keyParts []string
		keys := make([]tabular.Value, len(groupIdx))
		for i, c := range groupIdx {
			keys[i] = table.At(r, c)
			keyParts = append(keyParts, keys[i].String())
		}
		key := strings.Join(keyParts, "\x1f")

		g, ok := groups[key]
		if !ok {
			if len(groups) >= e.maxGroups {
				return nil, newExecutionError(ExecRuntimeException,
					"query produces too many groups",
					fmt.Errorf("group cardinality exceeds %d", e.maxGroups))
			}
			g = &group{keys: keys, states: make([]*aggState, len(aggs))}
			for i := range g.states {
				g.states[i] = &aggState{}
			}
			groups[key] = g
			order = append(order, key)
		}

		for i, agg := range aggs {
			if agg.col < 0 {
				g.states[i].count++
				continue
			}
			g.states[i].add(table.At(r, agg.col))
		}
	}

	// Whole-table aggregate with no matching rows still yields one row of
	// zero counts when grouping is absent.
	if len(groupIdx) == 0 && len(order) == 0 {
		g := &group{states: make([]*aggState, len(aggs))}
		for i := range g.states {
			g.states[i] = &aggState{}
		}
		groups[""] = g
		order = append(order, "")
	}

	var cols []string
	for _, item := range plan.Select {
		if item.Func == queryexpr.AggNone && !item.Star {
			cols = append(cols, item.OutputName())
		}
	}
	for _, agg := range aggs {
		cols = append(cols, agg.sel.OutputName())
	}

	rows := make([]models.ResultRow, 0, len(order))
	for _, key := range order {
		g := groups[key]
		row := make(models.ResultRow, len(cols))

		for _, item := range plan.Select {
			if item.Func != queryexpr.AggNone || item.Star {
				continue
			}
			for i, name := range plan.GroupBy {
				if strings.EqualFold(name, item.Column) {
					row[item.OutputName()] = g.keys[i].Native()
					break
				}
			}
		}

		for i, agg := range aggs {
			row[agg.sel.OutputName()] = g.states[i].value(agg.sel.Func)
		}
		rows = append(rows, row)
	}

	return &ExecutionResult{Columns: cols, Rows: rows, RowCount: len(rows)}, nil
}

// sortResult orders result rows by the named output column.
func sortResult(result *ExecutionResult, orderBy string, desc bool) {
	col := orderBy
	for _, c := range result.Columns {
		if strings.EqualFold(c, orderBy) {
			col = c
			break
		}
	}

	sort.SliceStable(result.Rows, func(i, j int) bool {
		less := lessNative(result.Rows[i][col], result.Rows[j][col])
		if desc {
			return lessNative(result.Rows[j][col], result.Rows[i][col])
		}
		return less
	})
}

func lessNative(a, b any) bool {
	if a == nil {
		return b != nil
	}
	if b == nil {
		return false
	}
	af, aNum := a.(float64)
	bf, bNum := b.(float64)
	if aNum && bNum {
		return af < bf
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}
