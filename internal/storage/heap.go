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

package storage

import (
	"github.com/boltdb/bolt"

	"github.com/devilsdb/ddb-go/internal/ddberrors"
	"github.com/devilsdb/ddb-go/internal/types"
)

// Stat mirrors the shape of stats consumed from the storage layer (§6):
// entry count plus whatever structural numbers a B+tree can report (a heap
// file reports only Entries).
type Stat struct {
	Entries    int
	LeafPages  int
	PSize      int
	Depth      int
}

// HeapFile is an append-only, row-id-keyed table store (§6: get, iter_scan,
// put, batch_append, truncate, delete, stat).
type HeapFile struct {
	mgr    *Manager
	bucket []byte
	schema types.RowType
}

func (f *HeapFile) Schema() types.RowType { return f.schema }

// Close is a no-op: the underlying bolt.DB connection is shared and owned
// by the Manager, not by individual HeapFile handles.
func (f *HeapFile) Close() error { return nil }

func (f *HeapFile) Get(id int64) (types.Row, error) {
	var row types.Row
	err := f.mgr.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(f.bucket)
		if b == nil {
			return ddberrors.Execution.New("heap file bucket missing")
		}
		data := b.Get(encodeRowID(id))
		if data == nil {
			return nil
		}
		var err error
		row, err = decodeRow(f.schema, data)
		return err
	})
	return row, err
}

// Put appends row, or overwrites it if id is non-nil, and returns its id.
func (f *HeapFile) Put(row types.Row, id *int64) (int64, error) {
	var resultID int64
	err := f.mgr.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(f.bucket)
		if b == nil {
			return ddberrors.Execution.New("heap file bucket missing")
		}
		var rowID int64
		if id != nil {
			rowID = *id
		} else {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			rowID = int64(seq)
		}
		data, err := encodeRow(f.schema, row)
		if err != nil {
			return err
		}
		resultID = rowID
		return b.Put(encodeRowID(rowID), data)
	})
	return resultID, err
}

// BatchAppend appends rows in one transaction and returns the id of the
// first appended row together with the count appended.
func (f *HeapFile) BatchAppend(rows []types.Row) (start int64, count int, err error) {
	err = f.mgr.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(f.bucket)
		if b == nil {
			return ddberrors.Execution.New("heap file bucket missing")
		}
		for i, row := range rows {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			if i == 0 {
				start = int64(seq)
			}
			data, err := encodeRow(f.schema, row)
			if err != nil {
				return err
			}
			if err := b.Put(encodeRowID(int64(seq)), data); err != nil {
				return err
			}
		}
		count = len(rows)
		return nil
	})
	return
}

func (f *HeapFile) Delete(id int64) (int, error) {
	var count int
	err := f.mgr.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(f.bucket)
		if b == nil {
			return ddberrors.Execution.New("heap file bucket missing")
		}
		key := encodeRowID(id)
		if b.Get(key) != nil {
			count = 1
		}
		return b.Delete(key)
	})
	return count, err
}

func (f *HeapFile) Truncate() error {
	return f.mgr.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(f.bucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(f.bucket)
		return err
	})
}

func (f *HeapFile) Stat() (Stat, error) {
	var s Stat
	err := f.mgr.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(f.bucket)
		if b == nil {
			return nil
		}
		s.Entries = b.Stats().KeyN
		return nil
	})
	return s, err
}

// IterScan returns every row in row-id order. If returnRowID, the row id is
// prepended as the first column of each emitted row (as the TableScan leaf
// operator requires for a primary-key-less table, §4.5).
func (f *HeapFile) IterScan(returnRowID bool) ([]types.Row, error) {
	var out []types.Row
	err := f.mgr.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(f.bucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			row, err := decodeRow(f.schema, v)
			if err != nil {
				return err
			}
			if returnRowID {
				withID := make(types.Row, len(row)+1)
				withID[0] = decodeRowID(k)
				copy(withID[1:], row)
				row = withID
			}
			out = append(out, row)
		}
		return nil
	})
	return out, err
}
