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

package command

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/devilsdb/ddb-go/internal/executor"
	"github.com/devilsdb/ddb-go/internal/executor/leaf"
	"github.com/devilsdb/ddb-go/internal/metadata"
	"github.com/devilsdb/ddb-go/internal/storage"
	"github.com/devilsdb/ddb-go/internal/types"
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

func TestCreateTableThenShowTables(t *testing.T) {
	ctx := newTestContext(t)
	meta := usersMeta()

	ct := NewCreateTable(ctx, meta)
	status, err := ct.Execute()
	require.NoError(t, err)
	require.Equal(t, "CREATE TABLE", status)

	st := NewShowTables(ctx)
	status, err = st.Execute()
	require.NoError(t, err)
	require.Contains(t, status, "users")
	require.Contains(t, status, "SELECT 1")
}

func TestInsertIntoPrimaryKeyTable(t *testing.T) {
	ctx := newTestContext(t)
	meta := usersMeta()
	require.NoError(t, ctx.MM.UpsertBaseTableMetadata(meta))
	_, err := ctx.MM.TableStorage(meta, true)
	require.NoError(t, err)

	rows := []types.Row{{int64(1), "alice", int64(30)}, {int64(2), "bob", int64(25)}}
	contents := leaf.NewLiteralTable(ctx, meta.ColumnNames, meta.ColumnTypes, rows)
	ins := NewInsert(ctx, meta, contents)

	status, err := ins.Execute()
	require.NoError(t, err)
	require.Equal(t, "INSERT 2", status)

	storageAny, err := ctx.MM.TableStorage(meta, false)
	require.NoError(t, err)
	tree := storageAny.(*storage.BplusTree)
	row, err := tree.GetOne(int64(1))
	require.NoError(t, err)
	require.Equal(t, types.Row{"alice", int64(30)}, row)
}

func TestInsertRejectsDuplicatePrimaryKey(t *testing.T) {
	ctx := newTestContext(t)
	meta := usersMeta()
	require.NoError(t, ctx.MM.UpsertBaseTableMetadata(meta))
	_, err := ctx.MM.TableStorage(meta, true)
	require.NoError(t, err)

	first := leaf.NewLiteralTable(ctx, meta.ColumnNames, meta.ColumnTypes, []types.Row{{int64(1), "alice", int64(30)}})
	_, err = NewInsert(ctx, meta, first).Execute()
	require.NoError(t, err)

	dup := leaf.NewLiteralTable(ctx, meta.ColumnNames, meta.ColumnTypes, []types.Row{{int64(1), "eve", int64(40)}})
	_, err = NewInsert(ctx, meta, dup).Execute()
	require.Error(t, err)
}

func TestCreateIndexThenDelete(t *testing.T) {
	ctx := newTestContext(t)
	meta := usersMeta()
	require.NoError(t, ctx.MM.UpsertBaseTableMetadata(meta))
	_, err := ctx.MM.TableStorage(meta, true)
	require.NoError(t, err)

	rows := []types.Row{
		{int64(1), "alice", int64(30)},
		{int64(2), "bob", int64(25)},
		{int64(3), "carl", int64(25)},
	}
	contents := leaf.NewLiteralTable(ctx, meta.ColumnNames, meta.ColumnTypes, rows)
	_, err = NewInsert(ctx, meta, contents).Execute()
	require.NoError(t, err)

	got, err := ctx.MM.GetBaseTableMetadata("users")
	require.NoError(t, err)
	meta = *got

	ci := NewCreateIndex(ctx, meta, 2) // index on age
	status, err := ci.Execute()
	require.NoError(t, err)
	require.Equal(t, "CREATE INDEX 3", status)

	got, err = ctx.MM.GetBaseTableMetadata("users")
	require.NoError(t, err)
	meta = *got
	require.Equal(t, []int{2}, meta.SecondaryColumnIndices)

	// delete the row whose id is 2, cleaning up its one secondary index entry.
	keyRows := leaf.NewLiteralTable(ctx, []string{"id", "age"}, types.RowType{types.INTEGER, types.INTEGER}, []types.Row{{int64(2), int64(25)}})
	del := NewDelete(ctx, meta, keyRows)
	status, err = del.Execute()
	require.NoError(t, err)
	require.Equal(t, "DELETE 1", status)

	storageAny, err := ctx.MM.TableStorage(meta, false)
	require.NoError(t, err)
	tree := storageAny.(*storage.BplusTree)
	row, err := tree.GetOne(int64(2))
	require.NoError(t, err)
	require.Nil(t, row)
}

func TestAnalyzeStatsValidatesTableExistence(t *testing.T) {
	ctx := newTestContext(t)
	meta := usersMeta()
	require.NoError(t, ctx.MM.UpsertBaseTableMetadata(meta))

	as := NewAnalyzeStats(ctx, nil)
	status, err := as.Execute()
	require.NoError(t, err)
	require.Equal(t, "ANALYZE", status)

	bogus := metadata.BaseTableMetadata{Name: "does_not_exist"}
	as = NewAnalyzeStats(ctx, []metadata.BaseTableMetadata{bogus})
	_, err = as.Execute()
	require.Error(t, err)
}
