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

// Package metadata describes table schemas: the ordered (name, type) pairs
// of a table, and the additional name/primary-key/secondary-index facts
// that make a TableMetadata a BaseTableMetadata (§3).
package metadata

import (
	"fmt"
	"strings"

	"github.com/devilsdb/ddb-go/internal/types"
)

const (
	InternalRowIDColumnName = ".row_id"
)

var InternalRowIDColumnType = types.INTEGER

// TableMetadata is the ordered schema of any table-shaped output: a
// sequence of (column name, value type) pairs.
type TableMetadata struct {
	ColumnNames []string
	ColumnTypes types.RowType
}

func (m TableMetadata) Pstr() string {
	parts := make([]string, len(m.ColumnNames))
	for i, n := range m.ColumnNames {
		parts[i] = n + " " + m.ColumnTypes[i].String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// BaseTableMetadata additionally names a persisted base table and records
// its (single-column) primary and secondary index structure.
type BaseTableMetadata struct {
	TableMetadata
	Name                    string
	PrimaryKeyColumnIndex   *int
	SecondaryColumnIndices  []int
}

// IDName is the name under which the row identity is exposed: the primary
// key column's own name, or the internal row-id pseudo-column when the
// table has no primary key and is heap-backed.
func (m BaseTableMetadata) IDName() string {
	if m.PrimaryKeyColumnIndex == nil {
		return InternalRowIDColumnName
	}
	return m.ColumnNames[*m.PrimaryKeyColumnIndex]
}

func (m BaseTableMetadata) IDType() types.ValType {
	if m.PrimaryKeyColumnIndex == nil {
		return InternalRowIDColumnType
	}
	return m.ColumnTypes[*m.PrimaryKeyColumnIndex]
}

func (m BaseTableMetadata) Pstr() string {
	parts := make([]string, len(m.ColumnNames))
	for i, n := range m.ColumnNames {
		tag := ""
		if m.PrimaryKeyColumnIndex != nil && *m.PrimaryKeyColumnIndex == i {
			tag += "[pk]"
		}
		for _, si := range m.SecondaryColumnIndices {
			if si == i {
				tag += "[sk]"
			}
		}
		parts[i] = fmt.Sprintf("%s%s %s", n, tag, m.ColumnTypes[i])
	}
	return fmt.Sprintf("%s(%s)", m.Name, strings.Join(parts, ", "))
}

// IsHeapBacked reports whether this table's primary storage is an
// id-keyed heap file (true) or a primary-key-keyed B+tree (false).
func (m BaseTableMetadata) IsHeapBacked() bool {
	return m.PrimaryKeyColumnIndex == nil
}
