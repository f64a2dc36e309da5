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

package rowops

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

func TestFilterKeepsOnlyMatching(t *testing.T) {
	ctx := newTestContext(t)
	input := literalInts(ctx, []int64{1, 2, 3, 4, 5})
	cond, err := valexpr.NewGT(valexpr.NewRelativeColumnRef(0, 0, types.INTEGER), valexpr.NewLiteral(int64(2), types.INTEGER))
	require.NoError(t, err)
	f := NewFilter(ctx, input, cond)

	rows := drain(t, f)
	require.Equal(t, []types.Row{{int64(3)}, {int64(4)}, {int64(5)}}, rows)
}

func TestProjectComputesExprs(t *testing.T) {
	ctx := newTestContext(t)
	input := literalInts(ctx, []int64{1, 2, 3})
	doubled, err := valexpr.NewMULTIPLY(valexpr.NewRelativeColumnRef(0, 0, types.INTEGER), valexpr.NewLiteral(int64(2), types.INTEGER))
	require.NoError(t, err)
	p := NewProject(ctx, input, []valexpr.Expr{doubled}, []string{"doubled"})

	props, err := p.Compiled()
	require.NoError(t, err)
	require.Equal(t, []string{"doubled"}, props.OutputMetadata.ColumnNames)

	rows := drain(t, p)
	require.Equal(t, []types.Row{{int64(2)}, {int64(4)}, {int64(6)}}, rows)
}

func TestProjectOfUnorderedInputClaimsNoOrdering(t *testing.T) {
	ctx := newTestContext(t)
	input := literalInts(ctx, []int64{1, 2, 3})
	ref := valexpr.NewRelativeColumnRef(0, 0, types.INTEGER)
	p := NewProject(ctx, input, []valexpr.Expr{ref}, []string{"v"})

	props, err := p.Compiled()
	require.NoError(t, err)
	// LiteralTable reports no ordering guarantee, so Project shouldn't
	// claim one either; this exercises the "stop at first non-preserved
	// column" path trivially (there's exactly one column, passed through).
	require.Empty(t, props.OrderedColumns)
}
