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

package metadata

import (
	"bytes"
	"encoding/gob"
	"sync"

	"github.com/devilsdb/ddb-go/internal/storage"
	"github.com/devilsdb/ddb-go/internal/types"
)

const tablesCatalogName = ".ddb_tables"

// Manager is the schema catalog: it maps table names to BaseTableMetadata,
// persisting the catalog itself as a heap file of gob-encoded records, and
// dispatches to the heap-file or B+tree storage backing each table and its
// secondary indices.
type Manager struct {
	sm    *storage.Manager
	mu    sync.Mutex
	cache map[string]BaseTableMetadata
}

func NewManager(sm *storage.Manager) *Manager {
	return &Manager{sm: sm, cache: map[string]BaseTableMetadata{}}
}

type gobRow struct {
	Name                   string
	ColumnNames            []string
	ColumnTypes            []int
	HasPrimaryKey          bool
	PrimaryKeyColumnIndex  int
	SecondaryColumnIndices []int
}

func toGobRow(m BaseTableMetadata) gobRow {
	g := gobRow{Name: m.Name, ColumnNames: m.ColumnNames, SecondaryColumnIndices: m.SecondaryColumnIndices}
	for _, t := range m.ColumnTypes {
		g.ColumnTypes = append(g.ColumnTypes, int(t))
	}
	if m.PrimaryKeyColumnIndex != nil {
		g.HasPrimaryKey = true
		g.PrimaryKeyColumnIndex = *m.PrimaryKeyColumnIndex
	}
	return g
}

func fromGobRow(g gobRow) BaseTableMetadata {
	m := BaseTableMetadata{
		TableMetadata:          TableMetadata{ColumnNames: g.ColumnNames},
		Name:                   g.Name,
		SecondaryColumnIndices: g.SecondaryColumnIndices,
	}
	for _, t := range g.ColumnTypes {
		m.ColumnTypes = append(m.ColumnTypes, types.ValType(t))
	}
	if g.HasPrimaryKey {
		idx := g.PrimaryKeyColumnIndex
		m.PrimaryKeyColumnIndex = &idx
	}
	return m
}

func (mgr *Manager) catalog() (*storage.HeapFile, error) {
	return mgr.sm.HeapFile(tablesCatalogName, types.RowType{types.VARCHAR, types.ANY}, true)
}

func (mgr *Manager) UpsertBaseTableMetadata(m BaseTableMetadata) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(toGobRow(m)); err != nil {
		return err
	}
	f, err := mgr.catalog()
	if err != nil {
		return err
	}
	// one entry per table name: delete-then-put keeps the catalog heap
	// file small, since HeapFile itself has no update-in-place primitive.
	rows, err := f.IterScan(true)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if r[1].(string) == m.Name {
			f.Delete(r[0].(int64))
		}
	}
	_, err = f.Put(types.Row{m.Name, buf.String()}, nil)
	if err != nil {
		return err
	}
	mgr.cache[m.Name] = m
	return nil
}

func (mgr *Manager) GetBaseTableMetadata(name string) (*BaseTableMetadata, error) {
	mgr.mu.Lock()
	if m, ok := mgr.cache[name]; ok {
		mgr.mu.Unlock()
		return &m, nil
	}
	mgr.mu.Unlock()
	f, err := mgr.catalog()
	if err != nil {
		return nil, err
	}
	rows, err := f.IterScan(false)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if r[0].(string) != name {
			continue
		}
		var g gobRow
		if err := gob.NewDecoder(bytes.NewBufferString(r[1].(string))).Decode(&g); err != nil {
			return nil, err
		}
		m := fromGobRow(g)
		return &m, nil
	}
	return nil, nil
}

func (mgr *Manager) ListBaseTables() ([]BaseTableMetadata, error) {
	f, err := mgr.catalog()
	if err != nil {
		return nil, err
	}
	rows, err := f.IterScan(false)
	if err != nil {
		return nil, err
	}
	var out []BaseTableMetadata
	for _, r := range rows {
		var g gobRow
		if err := gob.NewDecoder(bytes.NewBufferString(r[1].(string))).Decode(&g); err != nil {
			return nil, err
		}
		out = append(out, fromGobRow(g))
	}
	return out, nil
}

// TableStorage returns the heap file or B+tree backing m's primary data.
func (mgr *Manager) TableStorage(m BaseTableMetadata, createIfNotExists bool) (any, error) {
	if m.IsHeapBacked() {
		return mgr.sm.HeapFile(m.Name, m.ColumnTypes, createIfNotExists)
	}
	rowType := append(types.RowType{}, m.ColumnTypes...)
	keyIdx := *m.PrimaryKeyColumnIndex
	keyType := rowType[keyIdx]
	valueType := append(append(types.RowType{}, rowType[:keyIdx]...), rowType[keyIdx+1:]...)
	return mgr.sm.BplusTree(m.Name, keyType, valueType, true, createIfNotExists)
}

func (mgr *Manager) RemoveTableStorage(m BaseTableMetadata) error {
	if m.IsHeapBacked() {
		return mgr.sm.DeleteHeapFile(m.Name)
	}
	return mgr.sm.DeleteBplusTree(m.Name)
}

func secondaryIndexName(tableName, columnName string) string {
	return "." + tableName + "." + columnName
}

// IndexStorage returns the B+tree backing the index on column columnIndex,
// whether it is the primary key index or a secondary index.
func (mgr *Manager) IndexStorage(m BaseTableMetadata, columnIndex int, createIfNotExists bool) (*storage.BplusTree, error) {
	if m.PrimaryKeyColumnIndex != nil && *m.PrimaryKeyColumnIndex == columnIndex {
		rowType := append(types.RowType{}, m.ColumnTypes...)
		keyType := rowType[columnIndex]
		valueType := append(append(types.RowType{}, rowType[:columnIndex]...), rowType[columnIndex+1:]...)
		return mgr.sm.BplusTree(m.Name, keyType, valueType, true, createIfNotExists)
	}
	keyType := m.ColumnTypes[columnIndex]
	name := secondaryIndexName(m.Name, m.ColumnNames[columnIndex])
	return mgr.sm.BplusTree(name, keyType, types.RowType{InternalRowIDColumnType}, false, createIfNotExists)
}

func (mgr *Manager) RemoveSecondaryIndexStorage(m BaseTableMetadata, columnIndex int) error {
	name := secondaryIndexName(m.Name, m.ColumnNames[columnIndex])
	return mgr.sm.DeleteBplusTree(name)
}
