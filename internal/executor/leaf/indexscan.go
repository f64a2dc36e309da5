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
	"fmt"

	"github.com/devilsdb/ddb-go/internal/executor"
	"github.com/devilsdb/ddb-go/internal/metadata"
	"github.com/devilsdb/ddb-go/internal/storage"
	"github.com/devilsdb/ddb-go/internal/types"
	"github.com/devilsdb/ddb-go/internal/valexpr"
)

// IndexScan looks up or range-scans an index: the primary-key B+tree, a
// secondary-index B+tree (yielding (key, row id) pairs), or, when KeyName
// is the internal row-id pseudo-column, a direct heap-file Get by id.
// Grounded on the original indexscan.IndexScanPop. The scan range/key must
// be set via SetKey/SetRange before Execute().
type IndexScan struct {
	executor.Base
	Alias   string
	Meta    metadata.BaseTableMetadata
	KeyName string
	IsRange bool

	keyLower, keyUpper          any
	lowerExclusive, upperExclusive bool
}

func NewIndexScan(ctx *executor.StatementContext, alias string, meta metadata.BaseTableMetadata, keyName string, isRange bool) *IndexScan {
	s := &IndexScan{Alias: alias, Meta: meta, KeyName: keyName, IsRange: isRange}
	s.Init(ctx, s)
	return s
}

func (s *IndexScan) SetKey(key any) {
	s.keyLower, s.keyUpper = key, key
	s.lowerExclusive, s.upperExclusive = false, false
}

func (s *IndexScan) SetRange(lower, upper any, lowerExclusive, upperExclusive bool) {
	s.keyLower, s.keyUpper = lower, upper
	s.lowerExclusive, s.upperExclusive = lowerExclusive, upperExclusive
}

func (s *IndexScan) Children() []executor.QPop { return nil }
func (s *IndexScan) MemoryBlocksRequired() int { return 1 }
func (s *IndexScan) PstrMore() []string {
	open, shut := "[", "]"
	if s.lowerExclusive {
		open = "("
	}
	if s.upperExclusive {
		shut = ")"
	}
	return []string{
		fmt.Sprintf("AS %s using %s(%s)", s.Alias, s.Meta.Name, s.KeyName),
		fmt.Sprintf("key range: %s%v, %v%s", open, s.keyLower, s.keyUpper, shut),
	}
}

func (s *IndexScan) IsByRowID() bool { return s.KeyName == metadata.InternalRowIDColumnName }

func (s *IndexScan) IsByPrimaryKey() bool {
	return s.Meta.PrimaryKeyColumnIndex != nil && s.KeyName == s.Meta.ColumnNames[*s.Meta.PrimaryKeyColumnIndex]
}

func (s *IndexScan) columnIndex() int {
	for i, name := range s.Meta.ColumnNames {
		if name == s.KeyName {
			return i
		}
	}
	return -1
}

func (s *IndexScan) Compiled() (executor.CompiledProps, error) {
	return s.Base.Compiled(func() (executor.CompiledProps, error) {
		if s.IsByRowID() || s.IsByPrimaryKey() {
			var names []string
			var colTypes types.RowType
			var lineage valexpr.OutputLineage
			ordered, orderedAsc, unique := []int{}, []bool{}, map[int]struct{}{}
			if s.Meta.PrimaryKeyColumnIndex != nil {
				pk := *s.Meta.PrimaryKeyColumnIndex
				names = append(names, s.Meta.ColumnNames[pk])
				colTypes = append(colTypes, s.Meta.ColumnTypes[pk])
				lineage = append(lineage, singleColumnLineage(s.Alias, s.Meta.ColumnNames[pk]))
				ordered, orderedAsc, unique = []int{0}, []bool{true}, map[int]struct{}{0: {}}
			}
			for i, name := range s.Meta.ColumnNames {
				if s.Meta.PrimaryKeyColumnIndex != nil && i == *s.Meta.PrimaryKeyColumnIndex {
					continue
				}
				names = append(names, name)
				colTypes = append(colTypes, s.Meta.ColumnTypes[i])
				lineage = append(lineage, singleColumnLineage(s.Alias, name))
			}
			if s.Meta.PrimaryKeyColumnIndex == nil { // scanning by internal row id
				names = append([]string{metadata.InternalRowIDColumnName}, names...)
				colTypes = append(types.RowType{metadata.InternalRowIDColumnType}, colTypes...)
				lineage = append(valexpr.OutputLineage{singleColumnLineage(s.Alias, metadata.InternalRowIDColumnName)}, lineage...)
				ordered, orderedAsc, unique = []int{0}, []bool{true}, map[int]struct{}{0: {}}
			}
			return executor.CompiledProps{
				OutputMetadata: metadata.TableMetadata{ColumnNames: names, ColumnTypes: colTypes},
				OutputLineage:  lineage, OrderedColumns: ordered, OrderedAsc: orderedAsc, UniqueColumns: unique,
			}, nil
		}
		// secondary index scan: (key, row id)
		ci := s.columnIndex()
		return executor.CompiledProps{
			OutputMetadata: metadata.TableMetadata{
				ColumnNames: []string{s.KeyName, s.Meta.IDName()},
				ColumnTypes: types.RowType{s.Meta.ColumnTypes[ci], s.Meta.IDType()},
			},
			OutputLineage: valexpr.OutputLineage{
				singleColumnLineage(s.Alias, s.KeyName),
				singleColumnLineage(s.Alias, s.Meta.IDName()),
			},
			OrderedColumns: []int{0},
			OrderedAsc:     []bool{true},
			UniqueColumns:  map[int]struct{}{1: {}},
		}, nil
	})
}

func (s *IndexScan) Estimated() (executor.EstimatedProps, error) {
	return s.Base.Estimated(func() (executor.CompiledProps, error) { return s.Compiled() },
		func(compiled executor.CompiledProps) (executor.EstimatedProps, error) {
			rowSize := types.RowSize(compiled.OutputMetadata.ColumnTypes)
			selfReads := 1
			if s.IsRange {
				selfReads = 4
			}
			return executor.EstimatedProps{
				RowSize: rowSize,
				Blocks:  executor.StatsInBlocks{SelfReads: selfReads, Overall: selfReads},
			}, nil
		})
}

func (s *IndexScan) Execute() (func() (types.Row, bool, error), error) {
	var rows []types.Row
	if s.IsByRowID() {
		storageAny, err := s.Context.MM.TableStorage(s.Meta, false)
		if err != nil {
			return nil, err
		}
		f, ok := storageAny.(*storage.HeapFile)
		if !ok {
			return nil, fmt.Errorf("row-id scan requires a heap-backed table")
		}
		if s.keyLower != s.keyUpper {
			return nil, fmt.Errorf("row-id lookup requires a single key, not a range")
		}
		id, ok := s.keyLower.(int64)
		if !ok {
			return nil, fmt.Errorf("row id must be INTEGER")
		}
		row, err := f.Get(id)
		if err != nil {
			return nil, err
		}
		if row != nil {
			rows = append(rows, row)
		}
	} else {
		ci := s.columnIndex()
		f, err := s.Context.MM.IndexStorage(s.Meta, ci, false)
		if err != nil {
			return nil, err
		}
		var keys []any
		if s.keyLower != nil && s.keyLower == s.keyUpper {
			rows, err = f.IterGet(s.keyLower)
		} else {
			rows, keys, err = f.Range(s.keyLower, s.lowerExclusive, s.keyUpper, s.upperExclusive)
		}
		if err != nil {
			return nil, err
		}
		if keys != nil {
			merged := make([]types.Row, len(rows))
			for i, r := range rows {
				withKey := make(types.Row, len(r)+1)
				withKey[0] = keys[i]
				copy(withKey[1:], r)
				merged[i] = withKey
			}
			rows = merged
		} else {
			for i, r := range rows {
				withKey := make(types.Row, len(r)+1)
				withKey[0] = s.keyLower
				copy(withKey[1:], r)
				rows[i] = withKey
			}
		}
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
	return executor.TraceExecute(&s.Base, "IndexScan", raw), nil
}
