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

package join

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

func literalTable(ctx *executor.StatementContext, names []string, colType types.ValType, values []int64) executor.QPop {
	rows := make([]types.Row, len(values))
	for i, v := range values {
		rows[i] = types.Row{v}
	}
	rowType := make(types.RowType, len(names))
	for i := range names {
		rowType[i] = colType
	}
	return leaf.NewLiteralTable(ctx, names, rowType, rows)
}

func TestBNLJMatchesOnCondition(t *testing.T) {
	ctx := newTestContext(t)
	left := literalTable(ctx, []string{"a"}, types.INTEGER, []int64{1, 2, 3})
	right := literalTable(ctx, []string{"b"}, types.INTEGER, []int64{2, 3, 4})

	cond, err := valexpr.NewEQ(valexpr.NewRelativeColumnRef(0, 0, types.INTEGER), valexpr.NewRelativeColumnRef(1, 0, types.INTEGER))
	require.NoError(t, err)
	bnlj := NewBNLJ(ctx, left, right, cond, 4)

	rows := drain(t, bnlj)
	require.Equal(t, []types.Row{{int64(2), int64(2)}, {int64(3), int64(3)}}, rows)
}

func TestHashEqJMatchesOnEquiKey(t *testing.T) {
	ctx := newTestContext(t)
	left := literalTable(ctx, []string{"a"}, types.INTEGER, []int64{1, 2, 3, 2})
	right := literalTable(ctx, []string{"b"}, types.INTEGER, []int64{2, 3, 5})

	leftExprs := []valexpr.Expr{valexpr.NewRelativeColumnRef(0, 0, types.INTEGER)}
	rightExprs := []valexpr.Expr{valexpr.NewRelativeColumnRef(1, 0, types.INTEGER)}
	hj := NewHashEqJ(ctx, left, right, leftExprs, rightExprs, 4)

	rows := drain(t, hj)
	require.ElementsMatch(t, []types.Row{
		{int64(2), int64(2)},
		{int64(2), int64(2)},
		{int64(3), int64(3)},
	}, rows)
}

func TestMergeEqJMatchesSortedInputs(t *testing.T) {
	ctx := newTestContext(t)
	left := literalTable(ctx, []string{"a"}, types.INTEGER, []int64{1, 2, 2, 3})
	right := literalTable(ctx, []string{"b"}, types.INTEGER, []int64{2, 2, 3, 4})

	leftExprs := []valexpr.Expr{valexpr.NewRelativeColumnRef(0, 0, types.INTEGER)}
	rightExprs := []valexpr.Expr{valexpr.NewRelativeColumnRef(1, 0, types.INTEGER)}
	mj := NewMergeEqJ(ctx, left, right, leftExprs, rightExprs, []bool{true})

	rows := drain(t, mj)
	require.ElementsMatch(t, []types.Row{
		{int64(2), int64(2)},
		{int64(2), int64(2)},
		{int64(2), int64(2)},
		{int64(2), int64(2)},
		{int64(3), int64(3)},
	}, rows)
}

func TestIndexNLJProbesSecondaryIndex(t *testing.T) {
	ctx := newTestContext(t)
	pk := 0
	meta := metadata.BaseTableMetadata{
		TableMetadata: metadata.TableMetadata{
			ColumnNames: []string{"id", "age"},
			ColumnTypes: types.RowType{types.INTEGER, types.INTEGER},
		},
		Name:                   "people",
		PrimaryKeyColumnIndex:  &pk,
		SecondaryColumnIndices: []int{1},
	}
	tree, err := ctx.MM.IndexStorage(meta, 1, true)
	require.NoError(t, err)
	require.NoError(t, tree.Put(int64(30), types.Row{int64(1)}))
	require.NoError(t, tree.Put(int64(40), types.Row{int64(2)}))

	left := literalTable(ctx, []string{"wanted_age"}, types.INTEGER, []int64{30, 40, 50})
	right := leaf.NewIndexScan(ctx, "people", meta, "age", false)

	keyRef := valexpr.NewRelativeColumnRef(0, 0, types.INTEGER)
	sarg := executor.Sarg{KeyLower: keyRef, KeyUpper: keyRef}
	nlj := NewIndexNLJ(ctx, left, right, sarg, nil)

	rows := drain(t, nlj)
	require.ElementsMatch(t, []types.Row{
		{int64(30), int64(30), int64(1)},
		{int64(40), int64(40), int64(2)},
	}, rows)
}
