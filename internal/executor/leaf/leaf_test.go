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

package leaf

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/devilsdb/ddb-go/internal/executor"
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

func TestLiteralTable(t *testing.T) {
	ctx := newTestContext(t)
	rows := []types.Row{{int64(1), "a"}, {int64(2), "b"}}
	lt := NewLiteralTable(ctx, []string{"id", "name"}, types.RowType{types.INTEGER, types.VARCHAR}, rows)

	props, err := lt.Compiled()
	require.NoError(t, err)
	require.Equal(t, []string{"id", "name"}, props.OutputMetadata.ColumnNames)

	require.Equal(t, rows, drain(t, lt))
}

func TestTableScanHeapBacked(t *testing.T) {
	ctx := newTestContext(t)
	meta := metadata.BaseTableMetadata{
		TableMetadata: metadata.TableMetadata{
			ColumnNames: []string{"name"},
			ColumnTypes: types.RowType{types.VARCHAR},
		},
		Name: "t",
	}
	storageAny, err := ctx.MM.TableStorage(meta, true)
	require.NoError(t, err)
	heap := storageAny.(*storage.HeapFile)
	_, err = heap.Put(types.Row{"alice"}, nil)
	require.NoError(t, err)
	_, err = heap.Put(types.Row{"bob"}, nil)
	require.NoError(t, err)
	require.NoError(t, ctx.MM.UpsertBaseTableMetadata(meta))

	scan := NewTableScan(ctx, "t", meta, false)
	rows := drain(t, scan)
	require.Len(t, rows, 2)
}

func TestTableScanPrimaryKeyBacked(t *testing.T) {
	ctx := newTestContext(t)
	pk := 0
	meta := metadata.BaseTableMetadata{
		TableMetadata: metadata.TableMetadata{
			ColumnNames: []string{"id", "name"},
			ColumnTypes: types.RowType{types.INTEGER, types.VARCHAR},
		},
		Name:                  "t",
		PrimaryKeyColumnIndex: &pk,
	}
	storageAny, err := ctx.MM.TableStorage(meta, true)
	require.NoError(t, err)
	tree := storageAny.(*storage.BplusTree)
	require.NoError(t, tree.Put(int64(1), types.Row{"alice"}))
	require.NoError(t, tree.Put(int64(2), types.Row{"bob"}))
	require.NoError(t, ctx.MM.UpsertBaseTableMetadata(meta))

	scan := NewTableScan(ctx, "t", meta, false)
	props, err := scan.Compiled()
	require.NoError(t, err)
	require.Equal(t, []int{0}, props.OrderedColumns)

	rows := drain(t, scan)
	require.ElementsMatch(t, []types.Row{{int64(1), "alice"}, {int64(2), "bob"}}, rows)
}

func TestIndexScanSecondary(t *testing.T) {
	ctx := newTestContext(t)
	pk := 0
	meta := metadata.BaseTableMetadata{
		TableMetadata: metadata.TableMetadata{
			ColumnNames: []string{"id", "age"},
			ColumnTypes: types.RowType{types.INTEGER, types.INTEGER},
		},
		Name:                   "t",
		PrimaryKeyColumnIndex:  &pk,
		SecondaryColumnIndices: []int{1},
	}
	tree, err := ctx.MM.IndexStorage(meta, 1, true)
	require.NoError(t, err)
	require.NoError(t, tree.Put(int64(30), types.Row{int64(1)}))
	require.NoError(t, tree.Put(int64(40), types.Row{int64(2)}))

	scan := NewIndexScan(ctx, "t", meta, "age", false)
	scan.SetKey(int64(30))
	rows := drain(t, scan)
	require.Equal(t, []types.Row{{int64(30), int64(1)}}, rows)
}

func TestMaterializeCachesRows(t *testing.T) {
	ctx := newTestContext(t)
	rows := []types.Row{{int64(1)}, {int64(2)}, {int64(3)}}
	lt := NewLiteralTable(ctx, []string{"id"}, types.RowType{types.INTEGER}, rows)
	m, err := NewMaterialize(ctx, lt, true, 4)
	require.NoError(t, err)
	defer m.Close()

	first := drain(t, m)
	require.Equal(t, rows, first)
	second := drain(t, m)
	require.Equal(t, rows, second)
}
