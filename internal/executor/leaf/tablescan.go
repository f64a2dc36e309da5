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

// Package leaf implements the executor's leaf physical operators (§4.5):
// TableScan, IndexScan, LiteralTable, and Materialize.
package leaf

import (
	"fmt"

	"github.com/devilsdb/ddb-go/internal/executor"
	"github.com/devilsdb/ddb-go/internal/metadata"
	"github.com/devilsdb/ddb-go/internal/storage"
	"github.com/devilsdb/ddb-go/internal/types"
	"github.com/devilsdb/ddb-go/internal/valexpr"
)

// TableScan reads every row of a base table via the storage manager,
// grounded on the original tablescan.TableScanPop: for a heap-backed table
// it streams HeapFile.IterScan, optionally prefixing the internal row id;
// for a primary-key table it streams BplusTree.IterScan with the key
// prefixed as column 0.
type TableScan struct {
	executor.Base
	Alias       string
	Meta        metadata.BaseTableMetadata
	ReturnRowID bool
}

func NewTableScan(ctx *executor.StatementContext, alias string, meta metadata.BaseTableMetadata, returnRowID bool) *TableScan {
	t := &TableScan{Alias: alias, Meta: meta, ReturnRowID: returnRowID}
	t.Init(ctx, t)
	return t
}

func (t *TableScan) Children() []executor.QPop  { return nil }
func (t *TableScan) MemoryBlocksRequired() int  { return 1 }
func (t *TableScan) PstrMore() []string {
	return []string{fmt.Sprintf("%s AS %s", t.Meta.Name, t.Alias)}
}

func singleColumnLineage(alias, name string) map[valexpr.ColumnKey]struct{} {
	return map[valexpr.ColumnKey]struct{}{{TableAlias: alias, ColumnName: name}: {}}
}

func (t *TableScan) Compiled() (executor.CompiledProps, error) {
	return t.Base.Compiled(func() (executor.CompiledProps, error) {
		var names []string
		var colTypes types.RowType
		var lineage valexpr.OutputLineage
		ordered, orderedAsc, unique := []int{}, []bool{}, map[int]struct{}{}
		// the primary key column (if any) is always read out first, matching
		// the storage layer's own row shape (key prepended).
		if t.Meta.PrimaryKeyColumnIndex != nil {
			pk := *t.Meta.PrimaryKeyColumnIndex
			names = append(names, t.Meta.ColumnNames[pk])
			colTypes = append(colTypes, t.Meta.ColumnTypes[pk])
			lineage = append(lineage, singleColumnLineage(t.Alias, t.Meta.ColumnNames[pk]))
			ordered, orderedAsc, unique = []int{0}, []bool{true}, map[int]struct{}{0: {}}
		}
		for i, name := range t.Meta.ColumnNames {
			if t.Meta.PrimaryKeyColumnIndex != nil && i == *t.Meta.PrimaryKeyColumnIndex {
				continue
			}
			names = append(names, name)
			colTypes = append(colTypes, t.Meta.ColumnTypes[i])
			lineage = append(lineage, singleColumnLineage(t.Alias, name))
		}
		if t.ReturnRowID && t.Meta.PrimaryKeyColumnIndex == nil {
			names = append([]string{metadata.InternalRowIDColumnName}, names...)
			colTypes = append(types.RowType{metadata.InternalRowIDColumnType}, colTypes...)
			lineage = append(valexpr.OutputLineage{singleColumnLineage(t.Alias, metadata.InternalRowIDColumnName)}, lineage...)
			ordered, orderedAsc, unique = []int{0}, []bool{true}, map[int]struct{}{0: {}}
		}
		return executor.CompiledProps{
			OutputMetadata: metadata.TableMetadata{ColumnNames: names, ColumnTypes: colTypes},
			OutputLineage:  lineage,
			OrderedColumns: ordered,
			OrderedAsc:     orderedAsc,
			UniqueColumns:  unique,
		}, nil
	})
}

func (t *TableScan) Estimated() (executor.EstimatedProps, error) {
	return t.Base.Estimated(func() (executor.CompiledProps, error) { return t.Compiled() },
		func(compiled executor.CompiledProps) (executor.EstimatedProps, error) {
			storageAny, err := t.Context.MM.TableStorage(t.Meta, false)
			if err != nil {
				return executor.EstimatedProps{}, err
			}
			var rowCount int
			switch f := storageAny.(type) {
			case *storage.HeapFile:
				st, err := f.Stat()
				if err != nil {
					return executor.EstimatedProps{}, err
				}
				rowCount = st.Entries
			case *storage.BplusTree:
				st, err := f.Stat()
				if err != nil {
					return executor.EstimatedProps{}, err
				}
				rowCount = st.Entries
			}
			rowSize := types.RowSize(compiled.OutputMetadata.ColumnTypes)
			blocks := (rowCount*rowSize + types.BlockSize - 1) / types.BlockSize
			return executor.EstimatedProps{
				RowCount: int64(rowCount),
				RowSize:  rowSize,
				Blocks:   executor.StatsInBlocks{SelfReads: blocks, Overall: blocks},
			}, nil
		})
}

func (t *TableScan) Execute() (func() (types.Row, bool, error), error) {
	storageAny, err := t.Context.MM.TableStorage(t.Meta, false)
	if err != nil {
		return nil, err
	}
	var rows []types.Row
	switch f := storageAny.(type) {
	case *storage.HeapFile:
		rows, err = f.IterScan(t.ReturnRowID)
	case *storage.BplusTree:
		var keys []any
		rows, keys, err = f.IterScan(nil)
		if err == nil {
			merged := make([]types.Row, len(rows))
			for i, r := range rows {
				withKey := make(types.Row, len(r)+1)
				withKey[0] = keys[i]
				copy(withKey[1:], r)
				merged[i] = withKey
			}
			rows = merged
		}
	}
	if err != nil {
		return nil, err
	}
	i := 0
	raw := func() (types.Row, bool, error) {
		if i >= len(rows) {
			return nil, false, nil
		}
		r := rows[i]
		i++
		return r, true, nil
	}
	return executor.TraceExecute(&t.Base, "TableScan", raw), nil
}
