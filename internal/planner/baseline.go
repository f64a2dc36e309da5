// Copyright 2020-2026 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package planner

import (
	"github.com/devilsdb/ddb-go/internal/executor"
	"github.com/devilsdb/ddb-go/internal/executor/command"
	"github.com/devilsdb/ddb-go/internal/executor/join"
	"github.com/devilsdb/ddb-go/internal/executor/leaf"
	"github.com/devilsdb/ddb-go/internal/executor/rowops"
	"github.com/devilsdb/ddb-go/internal/executor/sortop"
	"github.com/devilsdb/ddb-go/internal/metadata"
	"github.com/devilsdb/ddb-go/internal/types"
	"github.com/devilsdb/ddb-go/internal/valexpr"
)

// BaselinePlanner does no join reordering and no cost estimation, but
// pushes down predicates eagerly and heuristically chooses index access
// and join methods based on index availability and desired ordering.
// Grounded on the original planner.baseline.BaselinePlanner.
type BaselinePlanner struct {
	Options Options
}

func NewBaselinePlanner(opts Options) *BaselinePlanner {
	return &BaselinePlanner{Options: opts}
}

// PlanSelect optimizes a single logical SELECT-FROM-WHERE-GROUPBY-HAVING
// block, returning the resulting physical plan. Grounded on the
// original's Planner.optimize_block.
func (p *BaselinePlanner) PlanSelect(ctx *executor.StatementContext, block *SelectBlock) (executor.QPop, error) {
	var plan executor.QPop
	cond := block.WhereCond
	var outerAliases []string
	for _, ref := range block.From {
		var localCond valexpr.Expr
		if cond != nil {
			localCond, cond = valexpr.PushDownConds(cond, append(append([]string{}, outerAliases...), ref.Alias))
		}
		next, err := p.optimizeOneMoreTable(ctx, plan, outerAliases, ref, localCond)
		if err != nil {
			return nil, err
		}
		plan = next
		outerAliases = append(outerAliases, ref.Alias)
	}
	if plan == nil {
		return nil, newError("SELECT has no FROM tables")
	}
	if cond != nil {
		plan = rowops.NewFilter(ctx, plan, cond)
	}
	if block.GroupByExprs != nil {
		grouped, groupByIndices, err := addGroupByBySorting(ctx, plan, block.GroupByExprs)
		if err != nil {
			return nil, err
		}
		plan, err = addHavingAndSelect(ctx, grouped, block.GroupByExprs, groupByIndices,
			block.HavingCond, block.SelectExprs, block.SelectAliases)
		if err != nil {
			return nil, err
		}
	} else {
		plan = rowops.NewProject(ctx, plan, block.SelectExprs, block.SelectAliases)
	}
	return plan, nil
}

// makeEqjCond looks for equality conjuncts of cond with one side entirely
// in leftAliases' scope and the other entirely in rightAliases' scope.
// Grounded on the original's make_eqj_cond.
func makeEqjCond(leftAliases, rightAliases []string, cond valexpr.Expr) (leftExprs, rightExprs []valexpr.Expr, remainder valexpr.Expr, ok bool) {
	var remainingParts []valexpr.Expr
	for _, part := range valexpr.ConjunctiveParts(cond) {
		cmp, isCmp := part.(*valexpr.CompareOp)
		if isCmp && cmp.Op() == "=" {
			left, right := cmp.Children()[0], cmp.Children()[1]
			if valexpr.InScope(left, leftAliases) && valexpr.InScope(right, rightAliases) {
				leftExprs = append(leftExprs, left)
				rightExprs = append(rightExprs, right)
				continue
			}
			if valexpr.InScope(right, leftAliases) && valexpr.InScope(left, rightAliases) {
				leftExprs = append(leftExprs, right)
				rightExprs = append(rightExprs, left)
				continue
			}
		}
		remainingParts = append(remainingParts, part)
	}
	if len(leftExprs) == 0 {
		return nil, nil, nil, false
	}
	return leftExprs, rightExprs, valexpr.MakeConjunction(remainingParts), true
}

// makeSorted ensures pop is sorted per exprs/ordersAscRequired (nil entries
// accept either direction), adding a MergeSort if the guarantee doesn't
// already hold. Grounded on the original's make_sorted.
func makeSorted(ctx *executor.StatementContext, pop executor.QPop, exprs []valexpr.Expr, ordersAscRequired []*bool) (executor.QPop, []bool, error) {
	props, err := pop.Compiled()
	if err != nil {
		return nil, nil, err
	}
	if actual, ok := props.IsOrdered(exprs, ordersAscRequired); ok {
		return pop, actual, nil
	}
	ordersAsc := make([]bool, len(exprs))
	for i, asc := range ordersAscRequired {
		if asc != nil {
			ordersAsc[i] = *asc
		} else {
			ordersAsc[i] = true
		}
	}
	sorted, err := sortop.NewMergeSort(ctx, pop, exprs, ordersAsc, DefaultSortBufferSize, DefaultSortLastBufferSize)
	if err != nil {
		return nil, nil, err
	}
	return sorted, ordersAsc, nil
}

// findPkiInExprs reports the index within exprs of a NamedColumnRef to
// plan's primary key column, if plan is a bare TableScan over a
// primary-keyed table. Grounded on the original's _find_pki_in_exprs.
func findPkiInExprs(plan executor.QPop, exprs []valexpr.Expr) (int, bool) {
	scan, ok := plan.(*leaf.TableScan)
	if !ok || scan.Meta.PrimaryKeyColumnIndex == nil {
		return 0, false
	}
	idName := scan.Meta.IDName()
	for i, e := range exprs {
		if ref, ok := e.(*valexpr.NamedColumnRef); ok && ref.TableAlias() == scan.Alias && ref.ColumnName() == idName {
			return i, true
		}
	}
	return 0, false
}

func boolPtr(b bool) *bool { return &b }

func nilBoolSlice(n int) []*bool { return make([]*bool, n) }

// makeSMJoin builds a sort-merge join of left and right on leftExprs/
// rightExprs, adopting whichever side's existing ordering it can, and
// rotating the join key list to lead with a primary key when one side is
// a bare table scan on it. Grounded on the original's make_smjoin.
func makeSMJoin(ctx *executor.StatementContext, left, right executor.QPop, leftExprs, rightExprs []valexpr.Expr, condRemainder valexpr.Expr) (executor.QPop, error) {
	ordersAscRequired := nilBoolSlice(len(leftExprs))
	leftProps, err := left.Compiled()
	if err != nil {
		return nil, err
	}
	rightProps, err := right.Compiled()
	if err != nil {
		return nil, err
	}
	if actual, ok := leftProps.IsOrdered(leftExprs, ordersAscRequired); ok {
		for i, asc := range actual {
			ordersAscRequired[i] = boolPtr(asc)
		}
	} else if actual, ok := rightProps.IsOrdered(rightExprs, ordersAscRequired); ok {
		for i, asc := range actual {
			ordersAscRequired[i] = boolPtr(asc)
		}
	} else if pki, ok := findPkiInExprs(left, leftExprs); ok {
		leftExprs = rotateToFront(leftExprs, pki)
		rightExprs = rotateToFront(rightExprs, pki)
		ordersAscRequired[0] = boolPtr(true)
	} else if pki, ok := findPkiInExprs(right, rightExprs); ok {
		leftExprs = rotateToFront(leftExprs, pki)
		rightExprs = rotateToFront(rightExprs, pki)
		ordersAscRequired[0] = boolPtr(true)
	}
	sortedLeft, ordersAsc, err := makeSorted(ctx, left, leftExprs, ordersAscRequired)
	if err != nil {
		return nil, err
	}
	ascPtrs := make([]*bool, len(ordersAsc))
	for i := range ordersAsc {
		ascPtrs[i] = boolPtr(ordersAsc[i])
	}
	sortedRight, _, err := makeSorted(ctx, right, rightExprs, ascPtrs)
	if err != nil {
		return nil, err
	}
	var pop executor.QPop = join.NewMergeEqJ(ctx, sortedLeft, sortedRight, leftExprs, rightExprs, ordersAsc)
	if condRemainder != nil {
		pop = rowops.NewFilter(ctx, pop, condRemainder)
	}
	return pop, nil
}

func rotateToFront(exprs []valexpr.Expr, i int) []valexpr.Expr {
	out := make([]valexpr.Expr, 0, len(exprs))
	out = append(out, exprs[i])
	out = append(out, exprs[:i]...)
	out = append(out, exprs[i+1:]...)
	return out
}

// makeHashJoin builds a hash-equi join of left and right on leftExprs/
// rightExprs. Grounded on the original's make_hashjoin.
func makeHashJoin(ctx *executor.StatementContext, left, right executor.QPop, leftExprs, rightExprs []valexpr.Expr, condRemainder valexpr.Expr) executor.QPop {
	var pop executor.QPop = join.NewHashEqJ(ctx, left, right, leftExprs, rightExprs, DefaultHashBufferSize)
	if condRemainder != nil {
		pop = rowops.NewFilter(ctx, pop, condRemainder)
	}
	return pop
}

// genSarg folds candidates (all sargable conjuncts on the same indexed
// column) into a single best Sarg, preferring EQ over any range bound,
// and returns the subset of candidates it actually used. Grounded on the
// original's _gen_sarg.
func genSarg(candidates []valexpr.Expr) (executor.Sarg, []valexpr.Expr) {
	var sarg executor.Sarg
	var covered []valexpr.Expr
	for _, cand := range candidates {
		col, op, bound, ok := valexpr.IsColumnComparingToLiteral(cand)
		if !ok {
			_ = col
			continue
		}
		switch op {
		case "=":
			sarg = executor.Sarg{IsRange: false, KeyLower: bound, KeyUpper: bound}
			covered = []valexpr.Expr{cand}
		case ">=", ">":
			if sarg.KeyLower != nil {
				continue
			}
			sarg.IsRange = true
			sarg.KeyLower = bound
			sarg.LowerExclusive = op == ">"
			covered = append(covered, cand)
		case "<=", "<":
			if sarg.KeyUpper != nil {
				continue
			}
			sarg.IsRange = true
			sarg.KeyUpper = bound
			sarg.UpperExclusive = op == "<"
			covered = append(covered, cand)
		}
	}
	return sarg, covered
}

// sargCond considers a base table (innerAlias, innerTable) joined with
// outerAliases (or standalone, if outerAliases is empty) and finds the
// best Sarg that cond makes available against one of its indexes.
// Grounded on the original's sarg_cond.
func sargCond(outerAliases []string, innerAlias string, innerTable metadata.BaseTableMetadata, cond valexpr.Expr) (columnIndex int, sarg executor.Sarg, remainder valexpr.Expr, ok bool) {
	indexedColumnNames := map[string]struct{}{}
	if innerTable.PrimaryKeyColumnIndex != nil {
		indexedColumnNames[innerTable.IDName()] = struct{}{}
	}
	for _, i := range innerTable.SecondaryColumnIndices {
		indexedColumnNames[innerTable.ColumnNames[i]] = struct{}{}
	}
	parts := valexpr.ConjunctiveParts(cond)
	candidatesByColumn := map[string][]valexpr.Expr{}
	for _, part := range parts {
		cmp, isCmp := part.(*valexpr.CompareOp)
		if !isCmp || cmp.Op() == "!=" {
			continue
		}
		col, _, _, isCand := valexpr.IsColumnComparingToLiteral(part)
		if !isCand {
			continue
		}
		ref, isNamed := col.(*valexpr.NamedColumnRef)
		if !isNamed || ref.TableAlias() != innerAlias {
			continue
		}
		if _, indexed := indexedColumnNames[ref.ColumnName()]; !indexed {
			continue
		}
		candidatesByColumn[ref.ColumnName()] = append(candidatesByColumn[ref.ColumnName()], part)
	}
	var bestColumn string
	var bestSarg executor.Sarg
	var bestCovered []valexpr.Expr
	haveBest := false
	for column, candidates := range candidatesByColumn {
		s, covered := genSarg(candidates)
		replace := false
		switch {
		case !haveBest:
			replace = true
		case bestSarg.IsRange && !s.IsRange:
			replace = true
		case bestSarg.IsRange == s.IsRange && column == innerTable.IDName():
			replace = true
		}
		if replace {
			bestColumn, bestSarg, bestCovered, haveBest = column, s, covered, true
		}
	}
	if !haveBest {
		return 0, executor.Sarg{}, nil, false
	}
	for i, name := range innerTable.ColumnNames {
		if name == bestColumn {
			columnIndex = i
			break
		}
	}
	if len(bestCovered) == 0 {
		return columnIndex, bestSarg, cond, true
	}
	var remaining []valexpr.Expr
	for _, part := range parts {
		if !containsExpr(bestCovered, part) {
			remaining = append(remaining, part)
		}
	}
	return columnIndex, bestSarg, valexpr.MakeConjunction(remaining), true
}

func containsExpr(list []valexpr.Expr, e valexpr.Expr) bool {
	for _, x := range list {
		if x == e {
			return true
		}
	}
	return false
}

// retrieveBaseByKey joins pop (which produces alias's primary key or row
// id column) against the base table via an index nested-loop join to
// retrieve the rest of the row, additionally applying cond. Grounded on
// the original's retrieve_base_by_key.
func retrieveBaseByKey(ctx *executor.StatementContext, pop executor.QPop, alias string, table metadata.BaseTableMetadata, cond valexpr.Expr) executor.QPop {
	popBase := leaf.NewIndexScan(ctx, alias, table, table.IDName(), false)
	key := valexpr.NewNamedColumnRef(alias, table.IDName(), table.IDType())
	sarg := executor.Sarg{IsRange: false, KeyLower: key, KeyUpper: key}
	return join.NewIndexNLJ(ctx, pop, popBase, sarg, cond)
}

// makeIndependentIndexScan builds a standalone index (or range) scan over
// table on columnIndex/sarg, retrieving the full row via a secondary
// index's key-then-base join when columnIndex isn't the primary key, and
// applying any remaining condition. Grounded on the original's
// make_independent_index_scan.
func makeIndependentIndexScan(ctx *executor.StatementContext, alias string, table metadata.BaseTableMetadata, columnIndex int, sarg executor.Sarg, condRemainder valexpr.Expr) (executor.QPop, error) {
	scan := leaf.NewIndexScan(ctx, alias, table, table.ColumnNames[columnIndex], sarg.IsRange)
	keyLower, keyUpper, err := evalSargBounds(sarg)
	if err != nil {
		return nil, err
	}
	scan.SetRange(keyLower, keyUpper, sarg.LowerExclusive, sarg.UpperExclusive)
	var pop executor.QPop = scan
	if table.PrimaryKeyColumnIndex == nil || columnIndex != *table.PrimaryKeyColumnIndex {
		pop = retrieveBaseByKey(ctx, pop, alias, table, condRemainder)
		condRemainder = nil
	}
	if condRemainder != nil {
		pop = rowops.NewFilter(ctx, pop, condRemainder)
	}
	return pop, nil
}

func evalSargBounds(sarg executor.Sarg) (lower, upper any, err error) {
	if sarg.KeyLower != nil {
		if lower, err = valexpr.EvalLiteral(sarg.KeyLower); err != nil {
			return nil, nil, err
		}
	}
	if sarg.KeyUpper != nil {
		if upper, err = valexpr.EvalLiteral(sarg.KeyUpper); err != nil {
			return nil, nil, err
		}
	}
	return lower, upper, nil
}

// makeIndexNLJoinWithTable joins left against table using an index on
// columnIndex/sarg, retrieving the rest of the row via a second index
// nested-loop join when the index is secondary. Grounded on the
// original's make_indexnljoin_with_table.
func makeIndexNLJoinWithTable(ctx *executor.StatementContext, left executor.QPop, alias string, table metadata.BaseTableMetadata, columnIndex int, sarg executor.Sarg, condRemainder valexpr.Expr) (executor.QPop, error) {
	scan := leaf.NewIndexScan(ctx, alias, table, table.ColumnNames[columnIndex], sarg.IsRange)
	var pop executor.QPop
	if table.PrimaryKeyColumnIndex == nil || columnIndex != *table.PrimaryKeyColumnIndex {
		pop = join.NewIndexNLJ(ctx, left, scan, sarg, nil)
		pop = retrieveBaseByKey(ctx, pop, alias, table, condRemainder)
	} else {
		pop = join.NewIndexNLJ(ctx, left, scan, sarg, condRemainder)
	}
	return pop, nil
}

// optimizeOneMoreTable extends plan (covering leftAliases, or nil if this
// is the first table) with one more base table, choosing the cheapest
// available method: index access, sort-merge join, hash join, or block
// nested-loop as the fallback. Grounded on the original's
// optimize_one_more_table.
func (p *BaselinePlanner) optimizeOneMoreTable(ctx *executor.StatementContext, left executor.QPop, leftAliases []string, ref BaseTableRef, cond valexpr.Expr) (executor.QPop, error) {
	if cond != nil {
		if columnIndex, sarg, condRemainder, ok := sargCond(leftAliases, ref.Alias, ref.Metadata, cond); ok {
			if left == nil {
				return makeIndependentIndexScan(ctx, ref.Alias, ref.Metadata, columnIndex, sarg, condRemainder)
			} else if p.Options.IndexJoin {
				return makeIndexNLJoinWithTable(ctx, left, ref.Alias, ref.Metadata, columnIndex, sarg, condRemainder)
			}
		}
	}
	if p.Options.SortMergeJoin && cond != nil && left != nil {
		if leftExprs, rightExprs, condRemainder, ok := makeEqjCond(leftAliases, []string{ref.Alias}, cond); ok {
			scan := makeTableScan(ctx, ref)
			return makeSMJoin(ctx, left, scan, leftExprs, rightExprs, condRemainder)
		}
	}
	if p.Options.HashJoin && cond != nil && left != nil {
		if leftExprs, rightExprs, condRemainder, ok := makeEqjCond(leftAliases, []string{ref.Alias}, cond); ok {
			scan := makeTableScan(ctx, ref)
			return makeHashJoin(ctx, left, scan, leftExprs, rightExprs, condRemainder), nil
		}
	}
	pop := makeTableScan(ctx, ref)
	if left == nil {
		if cond != nil {
			return rowops.NewFilter(ctx, pop, cond), nil
		}
		return pop, nil
	}
	return join.NewBNLJ(ctx, left, pop, cond, DefaultBNLJBufferSize), nil
}

func makeTableScan(ctx *executor.StatementContext, ref BaseTableRef) executor.QPop {
	return leaf.NewTableScan(ctx, ref.Alias, ref.Metadata, ref.ReturnRowID)
}

// PlanCreateTable builds the CREATE TABLE command operator.
func (p *BaselinePlanner) PlanCreateTable(ctx *executor.StatementContext, stmt *CreateTableStatement) executor.CPop {
	return command.NewCreateTable(ctx, stmt.Metadata)
}

// PlanShowTables builds the SHOW TABLES command operator.
func (p *BaselinePlanner) PlanShowTables(ctx *executor.StatementContext, _ *ShowTablesStatement) executor.CPop {
	return command.NewShowTables(ctx)
}

// PlanAnalyzeStats builds the ANALYZE command operator.
func (p *BaselinePlanner) PlanAnalyzeStats(ctx *executor.StatementContext, stmt *AnalyzeStatsStatement) executor.CPop {
	return command.NewAnalyzeStats(ctx, stmt.BaseMetas)
}

// PlanCreateIndex builds the CREATE INDEX command operator.
func (p *BaselinePlanner) PlanCreateIndex(ctx *executor.StatementContext, stmt *CreateIndexStatement) executor.CPop {
	return command.NewCreateIndex(ctx, stmt.Metadata, stmt.ColumnIndex)
}

// PlanInsert builds the INSERT command operator, wrapping its contents
// query in a blocking Materialize to decouple computing what to insert
// from the insert itself, and a Project to cast each value to the target
// column's type. Grounded on the original Planner.plan's InsertLop case.
func (p *BaselinePlanner) PlanInsert(ctx *executor.StatementContext, stmt *InsertStatement) (executor.CPop, error) {
	var contentsPop executor.QPop
	if stmt.Rows != nil {
		rows := make([]types.Row, len(stmt.Rows))
		for i, r := range stmt.Rows {
			rows[i] = types.Row(r)
		}
		contentsPop = leaf.NewLiteralTable(ctx, stmt.Metadata.ColumnNames, stmt.Metadata.ColumnTypes, rows)
	} else {
		planned, err := p.PlanSelect(ctx, stmt.Contents)
		if err != nil {
			return nil, err
		}
		contentsPop = planned
	}
	contentsProps, err := contentsPop.Compiled()
	if err != nil {
		return nil, err
	}
	castExprs := make([]valexpr.Expr, len(stmt.Metadata.ColumnTypes))
	for i, targetType := range stmt.Metadata.ColumnTypes {
		sourceType := contentsProps.OutputMetadata.ColumnTypes[i]
		ref := valexpr.Expr(valexpr.NewRelativeColumnRef(0, i, sourceType))
		if sourceType != targetType {
			cast, err := valexpr.NewCAST(ref, targetType)
			if err != nil {
				return nil, err
			}
			ref = cast
		}
		castExprs[i] = ref
	}
	projected := rowops.NewProject(ctx, contentsPop, castExprs, nil)
	materialized, err := leaf.NewMaterialize(ctx, projected, true, DefaultSortBufferSize)
	if err != nil {
		return nil, err
	}
	return command.NewInsert(ctx, stmt.Metadata, materialized), nil
}

// PlanDelete builds the DELETE command operator, wrapping KeyQuery in a
// blocking Materialize to decouple computing what to delete from the
// delete itself. Grounded on the original Planner.plan's DeleteLop case.
func (p *BaselinePlanner) PlanDelete(ctx *executor.StatementContext, stmt *DeleteStatement) (executor.CPop, error) {
	keyPop, err := p.PlanSelect(ctx, stmt.KeyQuery)
	if err != nil {
		return nil, err
	}
	return command.NewDelete(ctx, stmt.Metadata, keyPop), nil
}
