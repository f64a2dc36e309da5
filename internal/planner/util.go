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
	"github.com/devilsdb/ddb-go/internal/executor/aggr"
	"github.com/devilsdb/ddb-go/internal/executor/rowops"
	"github.com/devilsdb/ddb-go/internal/executor/sortop"
	"github.com/devilsdb/ddb-go/internal/valexpr"
)

// addGroupByBySorting adds whatever operators are needed on top of input
// so that its output carries every GROUP BY expression as a column, with
// rows of the same group consecutive (though in no particular order or
// column position otherwise). Returns the new plan and the output column
// index of each GROUP BY expression. Grounded on the original's
// add_groupby_by_sorting.
func addGroupByBySorting(ctx *executor.StatementContext, input executor.QPop, groupByExprs []valexpr.Expr) (executor.QPop, []int, error) {
	props, err := input.Compiled()
	if err != nil {
		return nil, nil, err
	}
	var appended []valexpr.Expr
	columnIndexOffset := len(props.OutputMetadata.ColumnNames)
	groupByColumnIndices := make([]int, len(groupByExprs))
	for i, g := range groupByExprs {
		if columnIndex, ok := props.ColumnInOutput(g, 0); ok {
			groupByColumnIndices[i] = columnIndex
		} else {
			groupByColumnIndices[i] = columnIndexOffset
			appended = append(appended, g)
			columnIndexOffset++
		}
	}
	if len(appended) > 0 {
		projectExprs := make([]valexpr.Expr, 0, len(props.OutputMetadata.ColumnTypes)+len(appended))
		for i, t := range props.OutputMetadata.ColumnTypes {
			projectExprs = append(projectExprs, valexpr.NewRelativeColumnRef(0, i, t))
		}
		projectExprs = append(projectExprs, appended...)
		input = rowops.NewProject(ctx, input, projectExprs, nil)
	} else {
		allOrdered := true
		for _, ci := range groupByColumnIndices {
			found := false
			for _, oc := range props.OrderedColumns {
				if oc == ci {
					found = true
					break
				}
			}
			if !found {
				allOrdered = false
				break
			}
		}
		if allOrdered {
			return input, groupByColumnIndices, nil
		}
	}
	props, err = input.Compiled()
	if err != nil {
		return nil, nil, err
	}
	sortExprs := make([]valexpr.Expr, len(groupByColumnIndices))
	ordersAsc := make([]bool, len(groupByColumnIndices))
	for i, ci := range groupByColumnIndices {
		sortExprs[i] = valexpr.NewRelativeColumnRef(0, ci, props.OutputMetadata.ColumnTypes[ci])
		ordersAsc[i] = true
	}
	sorted, err := sortop.NewMergeSort(ctx, input, sortExprs, ordersAsc, DefaultSortBufferSize, DefaultSortBufferSize)
	if err != nil {
		return nil, nil, err
	}
	return sorted, groupByColumnIndices, nil
}

// addHavingAndSelect computes every aggregate subexpression of
// havingCond/selectExprs via a single Aggr operator grouped by
// groupByColumnIndices, then applies HAVING and finally SELECT against
// the aggregate's output (GROUP BY columns followed by each distinct
// aggregate, in that order). Grounded on the original's
// add_having_and_select.
func addHavingAndSelect(ctx *executor.StatementContext, input executor.QPop, groupByExprs []valexpr.Expr, groupByColumnIndices []int,
	havingCond valexpr.Expr, selectExprs []valexpr.Expr, selectAliases []string) (executor.QPop, error) {
	var aggrExprs []valexpr.AggrExpr
	exprsToScan := append([]valexpr.Expr{}, selectExprs...)
	if havingCond != nil {
		exprsToScan = append([]valexpr.Expr{havingCond}, exprsToScan...)
	}
	for _, expr := range exprsToScan {
		for _, a := range valexpr.FindAggrs(expr) {
			dup := false
			for _, existing := range aggrExprs {
				if valexpr.MustBeEquivalent(a, existing) {
					dup = true
					break
				}
			}
			if !dup {
				aggrExprs = append(aggrExprs, a)
			}
		}
	}
	relativizedGroupBy := make([]valexpr.Expr, len(groupByExprs))
	for i, g := range groupByExprs {
		relativizedGroupBy[i] = valexpr.NewRelativeColumnRef(0, groupByColumnIndices[i], g.ValType())
	}
	numNonIncremental := 0
	for _, a := range aggrExprs {
		if !a.IsIncremental() {
			numNonIncremental++
		}
	}
	aggregated, err := aggr.NewAggr(ctx, input, relativizedGroupBy, aggrExprs, nil, 3*numNonIncremental)
	if err != nil {
		return nil, err
	}
	computedExprs := append(append([]valexpr.Expr{}, groupByExprs...), aggrExprsAsExprs(aggrExprs)...)
	noLineage := valexpr.NoLineage(len(computedExprs))
	var pop executor.QPop = aggregated
	if havingCond != nil {
		relativizedHaving := valexpr.Relativize(havingCond, []valexpr.OutputLineage{noLineage}, [][]valexpr.Expr{computedExprs})
		if relativizedHaving == nil {
			return nil, newError("HAVING condition is not computable from GROUP BY columns and aggregates")
		}
		pop = rowops.NewFilter(ctx, pop, relativizedHaving)
	}
	relativizedSelect := make([]valexpr.Expr, len(selectExprs))
	for i, e := range selectExprs {
		r := valexpr.Relativize(e, []valexpr.OutputLineage{noLineage}, [][]valexpr.Expr{computedExprs})
		if r == nil {
			return nil, newError("SELECT expression is not computable from GROUP BY columns and aggregates")
		}
		relativizedSelect[i] = r
	}
	return rowops.NewProject(ctx, pop, relativizedSelect, selectAliases), nil
}

func aggrExprsAsExprs(aggrExprs []valexpr.AggrExpr) []valexpr.Expr {
	out := make([]valexpr.Expr, len(aggrExprs))
	for i, a := range aggrExprs {
		out[i] = a
	}
	return out
}
