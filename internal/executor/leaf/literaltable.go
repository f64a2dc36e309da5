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
	"github.com/devilsdb/ddb-go/internal/executor"
	"github.com/devilsdb/ddb-go/internal/metadata"
	"github.com/devilsdb/ddb-go/internal/types"
	"github.com/devilsdb/ddb-go/internal/valexpr"
)

// LiteralTable serves a fixed, already-materialized set of rows: the
// physical form of a VALUES clause, or a degenerate single-row input for
// SELECT with no FROM.
type LiteralTable struct {
	executor.Base
	ColumnNames []string
	ColumnTypes types.RowType
	Rows        []types.Row
}

func NewLiteralTable(ctx *executor.StatementContext, columnNames []string, columnTypes types.RowType, rows []types.Row) *LiteralTable {
	l := &LiteralTable{ColumnNames: columnNames, ColumnTypes: columnTypes, Rows: rows}
	l.Init(ctx, l)
	return l
}

func (l *LiteralTable) Children() []executor.QPop { return nil }
func (l *LiteralTable) MemoryBlocksRequired() int { return 1 }
func (l *LiteralTable) PstrMore() []string         { return nil }

func (l *LiteralTable) Compiled() (executor.CompiledProps, error) {
	return l.Base.Compiled(func() (executor.CompiledProps, error) {
		lineage := make(valexpr.OutputLineage, len(l.ColumnNames))
		for i := range lineage {
			lineage[i] = map[valexpr.ColumnKey]struct{}{}
		}
		return executor.CompiledProps{
			OutputMetadata: metadata.TableMetadata{ColumnNames: l.ColumnNames, ColumnTypes: l.ColumnTypes},
			OutputLineage:  lineage,
			UniqueColumns:  map[int]struct{}{},
		}, nil
	})
}

func (l *LiteralTable) Estimated() (executor.EstimatedProps, error) {
	return l.Base.Estimated(func() (executor.CompiledProps, error) { return l.Compiled() },
		func(compiled executor.CompiledProps) (executor.EstimatedProps, error) {
			return executor.EstimatedProps{RowCount: int64(len(l.Rows)), RowSize: types.RowSize(l.ColumnTypes)}, nil
		})
}

func (l *LiteralTable) Execute() (func() (types.Row, bool, error), error) {
	i := 0
	raw := func() (types.Row, bool, error) {
		if i >= len(l.Rows) {
			return nil, false, nil
		}
		r := l.Rows[i]
		i++
		return r, true, nil
	}
	return executor.TraceExecute(&l.Base, "LiteralTable", raw), nil
}
