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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/devilsdb/ddb-go/internal/executor"
	"github.com/devilsdb/ddb-go/internal/executor/command"
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

func usersMeta() metadata.BaseTableMetadata {
	pk := 0
	return metadata.BaseTableMetadata{
		TableMetadata: metadata.TableMetadata{
			ColumnNames: []string{"id", "name", "age"},
			ColumnTypes: types.RowType{types.INTEGER, types.VARCHAR, types.INTEGER},
		},
		Name:                  "users",
		PrimaryKeyColumnIndex: &pk,
	}
}

func seedUsers(t *testing.T, ctx *executor.StatementContext, meta metadata.BaseTableMetadata, rows []types.Row) {
	t.Helper()
	require.NoError(t, ctx.MM.UpsertBaseTableMetadata(meta))
	storageAny, err := ctx.MM.TableStorage(meta, true)
	require.NoError(t, err)
	tree := storageAny.(*storage.BplusTree)
	for _, r := range rows {
		require.NoError(t, tree.Put(r[0], r[1:]))
	}
}

func TestPlanSelectScanFilterProject(t *testing.T) {
	ctx := newTestContext(t)
	meta := usersMeta()
	seedUsers(t, ctx, meta, []types.Row{
		{int64(1), "alice", int64(30)},
		{int64(2), "bob", int64(25)},
		{int64(3), "carl", int64(40)},
	})

	ageRef := valexpr.NewNamedColumnRef("u", "age", types.INTEGER)
	cond, err := valexpr.NewGE(ageRef, valexpr.NewLiteral(int64(30), types.INTEGER))
	require.NoError(t, err)
	nameRef := valexpr.NewNamedColumnRef("u", "name", types.VARCHAR)

	block := &SelectBlock{
		From:          []BaseTableRef{{Alias: "u", Metadata: meta}},
		WhereCond:     cond,
		SelectExprs:   []valexpr.Expr{nameRef},
		SelectAliases: []string{"name"},
	}

	p := NewBaselinePlanner(DefaultOptions())
	plan, err := p.PlanSelect(ctx, block)
	require.NoError(t, err)

	rows := drain(t, plan)
	require.ElementsMatch(t, []types.Row{{"alice"}, {"carl"}}, rows)
}

func TestPlanSelectUsesIndexForEqualityOnIndexedColumn(t *testing.T) {
	ctx := newTestContext(t)
	meta := usersMeta()
	seedUsers(t, ctx, meta, []types.Row{
		{int64(1), "alice", int64(30)},
		{int64(2), "bob", int64(25)},
	})

	idRef := valexpr.NewNamedColumnRef("u", "id", types.INTEGER)
	cond, err := valexpr.NewEQ(idRef, valexpr.NewLiteral(int64(2), types.INTEGER))
	require.NoError(t, err)
	nameRef := valexpr.NewNamedColumnRef("u", "name", types.VARCHAR)

	block := &SelectBlock{
		From:          []BaseTableRef{{Alias: "u", Metadata: meta}},
		WhereCond:     cond,
		SelectExprs:   []valexpr.Expr{nameRef},
		SelectAliases: []string{"name"},
	}

	p := NewBaselinePlanner(DefaultOptions())
	plan, err := p.PlanSelect(ctx, block)
	require.NoError(t, err)

	rows := drain(t, plan)
	require.Equal(t, []types.Row{{"bob"}}, rows)
}

func TestPlanSelectJoinsTwoTables(t *testing.T) {
	ctx := newTestContext(t)
	usersM := usersMeta()
	seedUsers(t, ctx, usersM, []types.Row{
		{int64(1), "alice", int64(30)},
		{int64(2), "bob", int64(25)},
	})

	pk := 0
	ordersM := metadata.BaseTableMetadata{
		TableMetadata: metadata.TableMetadata{
			ColumnNames: []string{"id", "user_id", "total"},
			ColumnTypes: types.RowType{types.INTEGER, types.INTEGER, types.INTEGER},
		},
		Name:                  "orders",
		PrimaryKeyColumnIndex: &pk,
	}
	require.NoError(t, ctx.MM.UpsertBaseTableMetadata(ordersM))
	ordersStorage, err := ctx.MM.TableStorage(ordersM, true)
	require.NoError(t, err)
	ordersTree := ordersStorage.(*storage.BplusTree)
	require.NoError(t, ordersTree.Put(int64(100), types.Row{int64(1), int64(50)}))
	require.NoError(t, ordersTree.Put(int64(101), types.Row{int64(2), int64(75)}))

	joinCond, err := valexpr.NewEQ(
		valexpr.NewNamedColumnRef("u", "id", types.INTEGER),
		valexpr.NewNamedColumnRef("o", "user_id", types.INTEGER),
	)
	require.NoError(t, err)

	block := &SelectBlock{
		From: []BaseTableRef{
			{Alias: "u", Metadata: usersM},
			{Alias: "o", Metadata: ordersM},
		},
		WhereCond: joinCond,
		SelectExprs: []valexpr.Expr{
			valexpr.NewNamedColumnRef("u", "name", types.VARCHAR),
			valexpr.NewNamedColumnRef("o", "total", types.INTEGER),
		},
		SelectAliases: []string{"name", "total"},
	}

	p := NewBaselinePlanner(DefaultOptions())
	plan, err := p.PlanSelect(ctx, block)
	require.NoError(t, err)

	rows := drain(t, plan)
	require.ElementsMatch(t, []types.Row{
		{"alice", int64(50)},
		{"bob", int64(75)},
	}, rows)
}

func TestPlanSelectFallsBackToBNLJWhenJoinMethodsDisabled(t *testing.T) {
	ctx := newTestContext(t)
	usersM := usersMeta()
	seedUsers(t, ctx, usersM, []types.Row{
		{int64(1), "alice", int64(30)},
		{int64(2), "bob", int64(25)},
	})

	pk := 0
	ordersM := metadata.BaseTableMetadata{
		TableMetadata: metadata.TableMetadata{
			ColumnNames: []string{"id", "user_id", "total"},
			ColumnTypes: types.RowType{types.INTEGER, types.INTEGER, types.INTEGER},
		},
		Name:                  "orders",
		PrimaryKeyColumnIndex: &pk,
	}
	require.NoError(t, ctx.MM.UpsertBaseTableMetadata(ordersM))
	ordersStorage, err := ctx.MM.TableStorage(ordersM, true)
	require.NoError(t, err)
	ordersTree := ordersStorage.(*storage.BplusTree)
	require.NoError(t, ordersTree.Put(int64(100), types.Row{int64(1), int64(50)}))

	joinCond, err := valexpr.NewEQ(
		valexpr.NewNamedColumnRef("u", "id", types.INTEGER),
		valexpr.NewNamedColumnRef("o", "user_id", types.INTEGER),
	)
	require.NoError(t, err)

	block := &SelectBlock{
		From: []BaseTableRef{
			{Alias: "u", Metadata: usersM},
			{Alias: "o", Metadata: ordersM},
		},
		WhereCond: joinCond,
		SelectExprs: []valexpr.Expr{
			valexpr.NewNamedColumnRef("u", "name", types.VARCHAR),
			valexpr.NewNamedColumnRef("o", "total", types.INTEGER),
		},
		SelectAliases: []string{"name", "total"},
	}

	// Disabling every other join method forces optimizeOneMoreTable down
	// to its BNLJ fallback even though id=user_id would otherwise pick a
	// sort-merge join (it compares two columns, so it offers no Sarg for
	// an index join).
	opts := Options{IndexJoin: false, SortMergeJoin: false, HashJoin: false}
	p := NewBaselinePlanner(opts)
	plan, err := p.PlanSelect(ctx, block)
	require.NoError(t, err)

	rows := drain(t, plan)
	require.Equal(t, []types.Row{{"alice", int64(50)}}, rows)
}

func TestPlanSelectGroupByHavingSelect(t *testing.T) {
	ctx := newTestContext(t)
	meta := usersMeta()
	seedUsers(t, ctx, meta, []types.Row{
		{int64(1), "alice", int64(30)},
		{int64(2), "bob", int64(30)},
		{int64(3), "carl", int64(40)},
	})

	ageRef := valexpr.NewNamedColumnRef("u", "age", types.INTEGER)
	countArg := valexpr.NewNamedColumnRef("u", "id", types.INTEGER)
	countExpr := valexpr.NewCOUNT(countArg, false)
	havingCond, err := valexpr.NewGE(countExpr, valexpr.NewLiteral(int64(2), types.INTEGER))
	require.NoError(t, err)

	block := &SelectBlock{
		From:          []BaseTableRef{{Alias: "u", Metadata: meta}},
		GroupByExprs:  []valexpr.Expr{ageRef},
		HavingCond:    havingCond,
		SelectExprs:   []valexpr.Expr{ageRef, countExpr},
		SelectAliases: []string{"age", "n"},
	}

	p := NewBaselinePlanner(DefaultOptions())
	plan, err := p.PlanSelect(ctx, block)
	require.NoError(t, err)

	rows := drain(t, plan)
	require.Equal(t, []types.Row{{int64(30), int64(2)}}, rows)
}

func TestPlanInsertCastsValuesAndMaterializes(t *testing.T) {
	ctx := newTestContext(t)
	meta := usersMeta()
	require.NoError(t, ctx.MM.UpsertBaseTableMetadata(meta))
	_, err := ctx.MM.TableStorage(meta, true)
	require.NoError(t, err)

	stmt := &InsertStatement{
		Metadata: meta,
		Rows: []RowLiteral{
			{int64(1), "alice", int64(30)},
		},
	}
	p := NewBaselinePlanner(DefaultOptions())
	cpop, err := p.PlanInsert(ctx, stmt)
	require.NoError(t, err)
	require.IsType(t, &command.Insert{}, cpop)

	status, err := cpop.Execute()
	require.NoError(t, err)
	require.Equal(t, "INSERT 1", status)
}

func TestPlanDeleteRemovesMatchingRows(t *testing.T) {
	ctx := newTestContext(t)
	meta := usersMeta()
	seedUsers(t, ctx, meta, []types.Row{
		{int64(1), "alice", int64(30)},
		{int64(2), "bob", int64(25)},
	})

	idRef := valexpr.NewNamedColumnRef("u", "id", types.INTEGER)
	cond, err := valexpr.NewEQ(idRef, valexpr.NewLiteral(int64(2), types.INTEGER))
	require.NoError(t, err)

	keyQuery := &SelectBlock{
		From:          []BaseTableRef{{Alias: "u", Metadata: meta}},
		WhereCond:     cond,
		SelectExprs:   []valexpr.Expr{idRef},
		SelectAliases: []string{"id"},
	}
	stmt := &DeleteStatement{Metadata: meta, KeyQuery: keyQuery}

	p := NewBaselinePlanner(DefaultOptions())
	cpop, err := p.PlanDelete(ctx, stmt)
	require.NoError(t, err)

	status, err := cpop.Execute()
	require.NoError(t, err)
	require.Equal(t, "DELETE 1", status)

	storageAny, err := ctx.MM.TableStorage(meta, false)
	require.NoError(t, err)
	tree := storageAny.(*storage.BplusTree)
	row, err := tree.GetOne(int64(2))
	require.NoError(t, err)
	require.Nil(t, row)
}
