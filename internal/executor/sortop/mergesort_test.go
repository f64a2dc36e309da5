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

package sortop

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

func literalInts(ctx *executor.StatementContext, values []int64) executor.QPop {
	rows := make([]types.Row, len(values))
	for i, v := range values {
		rows[i] = types.Row{v}
	}
	return leaf.NewLiteralTable(ctx, []string{"v"}, types.RowType{types.INTEGER}, rows)
}

func TestMergeSortAscending(t *testing.T) {
	ctx := newTestContext(t)
	input := literalInts(ctx, []int64{5, 1, 4, 2, 3})
	ref := valexpr.NewRelativeColumnRef(0, 0, types.INTEGER)
	ms, err := NewMergeSort(ctx, input, []valexpr.Expr{ref}, []bool{true}, 4, 4)
	require.NoError(t, err)

	rows := drain(t, ms)
	require.Equal(t, []types.Row{{int64(1)}, {int64(2)}, {int64(3)}, {int64(4)}, {int64(5)}}, rows)
}

func TestMergeSortDescending(t *testing.T) {
	ctx := newTestContext(t)
	input := literalInts(ctx, []int64{5, 1, 4, 2, 3})
	ref := valexpr.NewRelativeColumnRef(0, 0, types.INTEGER)
	ms, err := NewMergeSort(ctx, input, []valexpr.Expr{ref}, []bool{false}, 4, 4)
	require.NoError(t, err)

	rows := drain(t, ms)
	require.Equal(t, []types.Row{{int64(5)}, {int64(4)}, {int64(3)}, {int64(2)}, {int64(1)}}, rows)
}

func TestMergeSortSpillsAcrossMultipleRuns(t *testing.T) {
	ctx := newTestContext(t)
	// 2000 single-INTEGER rows at about 32 estimated bytes each far exceed
	// 3 memory blocks, forcing the sort to spill multiple runs to
	// temporary heap files via extsort.
	values := make([]int64, 2000)
	for i := range values {
		values[i] = int64((i * 7919) % 2000)
	}
	input := literalInts(ctx, values)
	ref := valexpr.NewRelativeColumnRef(0, 0, types.INTEGER)
	ms, err := NewMergeSort(ctx, input, []valexpr.Expr{ref}, []bool{true}, 3, 3)
	require.NoError(t, err)

	rows := drain(t, ms)
	require.Len(t, rows, len(values))
	for i := 1; i < len(rows); i++ {
		require.LessOrEqual(t, rows[i-1][0].(int64), rows[i][0].(int64))
	}
}

func TestNewMergeSortRejectsTooFewMemoryBlocks(t *testing.T) {
	ctx := newTestContext(t)
	input := literalInts(ctx, []int64{1})
	ref := valexpr.NewRelativeColumnRef(0, 0, types.INTEGER)
	_, err := NewMergeSort(ctx, input, []valexpr.Expr{ref}, []bool{true}, 2, 2)
	require.Error(t, err)
}
