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

package aggr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/devilsdb/ddb-go/internal/executor"
	"github.com/devilsdb/ddb-go/internal/executor/leaf"
	"github.com/devilsdb/ddb-go/internal/metadata"
	"github.com/devilsdb/ddb-go/internal/storage"
	"github.com/devilsdb/ddb-go/internal/types"
	"github.com/devilsdb/ddb-go/internal/valexpr"
)

func newTestContext(t *testing.T) *executor.StatementContext {
	t.Helper()
	sm, err := storage.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { sm.Close() })
	return &executor.StatementContext{
		SM:      sm,
		MM:      metadata.NewManager(sm),
		Tmp:     sm.TmpFileFactory("test"),
		Profile: executor.NewProfileContext(),
	}
}

func drain(t *testing.T, pop executor.QPop) []types.Row {
	t.Helper()
	next, err := pop.Execute()
	require.NoError(t, err)
	var rows []types.Row
	for {
		row, ok, err := next()
		require.NoError(t, err)
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	return rows
}

// groupedInput builds rows already contiguous by group (as the planner
// guarantees via a preceding sort), two columns: group key, value.
func groupedInput(ctx *executor.StatementContext, pairs [][2]int64) executor.QPop {
	rows := make([]types.Row, len(pairs))
	for i, p := range pairs {
		rows[i] = types.Row{p[0], p[1]}
	}
	return leaf.NewLiteralTable(ctx, []string{"g", "v"}, types.RowType{types.INTEGER, types.INTEGER}, rows)
}

func TestAggrSumPerGroup(t *testing.T) {
	ctx := newTestContext(t)
	input := groupedInput(ctx, [][2]int64{{1, 10}, {1, 20}, {2, 5}})
	groupBy := valexpr.NewRelativeColumnRef(0, 0, types.INTEGER)
	arg := valexpr.NewRelativeColumnRef(0, 1, types.INTEGER)
	sum, err := valexpr.NewSUM(arg, false)
	require.NoError(t, err)

	a, err := NewAggr(ctx, input, []valexpr.Expr{groupBy}, []valexpr.AggrExpr{sum}, nil, 4)
	require.NoError(t, err)

	rows := drain(t, a)
	require.Equal(t, []types.Row{{int64(1), int64(30)}, {int64(2), int64(5)}}, rows)
}

func TestAggrCountDistinct(t *testing.T) {
	ctx := newTestContext(t)
	input := groupedInput(ctx, [][2]int64{{1, 10}, {1, 10}, {1, 20}})
	groupBy := valexpr.NewRelativeColumnRef(0, 0, types.INTEGER)
	arg := valexpr.NewRelativeColumnRef(0, 1, types.INTEGER)
	count := valexpr.NewCOUNT(arg, true)

	a, err := NewAggr(ctx, input, []valexpr.Expr{groupBy}, []valexpr.AggrExpr{count}, nil, 6)
	require.NoError(t, err)

	rows := drain(t, a)
	require.Equal(t, []types.Row{{int64(1), int64(2)}}, rows)
}

func TestAggrRejectsTooFewMemoryBlocksForNonIncremental(t *testing.T) {
	ctx := newTestContext(t)
	input := groupedInput(ctx, [][2]int64{{1, 10}})
	groupBy := valexpr.NewRelativeColumnRef(0, 0, types.INTEGER)
	arg := valexpr.NewRelativeColumnRef(0, 1, types.INTEGER)
	count := valexpr.NewCOUNT(arg, true) // DISTINCT is non-incremental

	_, err := NewAggr(ctx, input, []valexpr.Expr{groupBy}, []valexpr.AggrExpr{count}, nil, 2)
	require.Error(t, err)
}

func TestAggrNoGroupByYieldsSingleRow(t *testing.T) {
	ctx := newTestContext(t)
	input := groupedInput(ctx, [][2]int64{{1, 10}, {2, 20}, {3, 30}})
	arg := valexpr.NewRelativeColumnRef(0, 1, types.INTEGER)
	sum, err := valexpr.NewSUM(arg, false)
	require.NoError(t, err)

	a, err := NewAggr(ctx, input, nil, []valexpr.AggrExpr{sum}, nil, 4)
	require.NoError(t, err)

	rows := drain(t, a)
	require.Equal(t, []types.Row{{int64(60)}}, rows)
}
