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
	"bytes"
	"encoding/binary"

	"github.com/boltdb/bolt"

	"github.com/devilsdb/ddb-go/internal/ddberrors"
	"github.com/devilsdb/ddb-go/internal/types"
)

// BplusTree is a key-sorted table store (§6: get_one, iter_get, iter_scan,
// put, delete, stat). Bolt buckets are themselves B+trees ordered by key
// bytes, so this is a thin encoding layer over one bucket: each stored key
// is encodeSortKey(key) followed by a monotonic sequence number, which
// disambiguates non-unique entries while preserving primary order by key.
type BplusTree struct {
	mgr         *Manager
	bucket      []byte
	keyType     types.ValType
	valueSchema types.RowType
	unique      bool
}

func (t *BplusTree) Close() error { return nil }

const seqLen = 8

func compositeKey(keyBytes []byte, seq uint64) []byte {
	out := make([]byte, len(keyBytes)+seqLen)
	copy(out, keyBytes)
	binary.BigEndian.PutUint64(out[len(keyBytes):], seq)
	return out
}

// GetOne returns the first row stored under key, or nil if there is none.
func (t *BplusTree) GetOne(key any) (types.Row, error) {
	rows, err := t.IterGet(key)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// IterGet returns every row stored under key, in insertion order.
func (t *BplusTree) IterGet(key any) ([]types.Row, error) {
	keyBytes, err := encodeSortKey(t.keyType, key)
	if err != nil {
		return nil, err
	}
	var out []types.Row
	err = t.mgr.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(t.bucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(keyBytes); k != nil && bytes.HasPrefix(k, keyBytes) && len(k) == len(keyBytes)+seqLen; k, v = c.Next() {
			row, err := decodeRow(t.valueSchema, v)
			if err != nil {
				return err
			}
			out = append(out, row)
		}
		return nil
	})
	return out, err
}

// IterScan iterates every (key, row) pair in ascending key order, starting
// from keyLower if non-nil.
func (t *BplusTree) IterScan(keyLower any) ([]types.Row, []any, error) {
	return t.iterRange(keyLower, false, nil, false)
}

// iterRange is the shared engine behind IterScan and the IndexScan leaf
// operator's range access: bounds may be nil (unbounded) and exclusivity
// flags apply only when the corresponding bound is non-nil.
func (t *BplusTree) iterRange(lower any, lowerExclusive bool, upper any, upperExclusive bool) ([]types.Row, []any, error) {
	var lowerBytes, upperBytes []byte
	var err error
	if lower != nil {
		lowerBytes, err = encodeSortKey(t.keyType, lower)
		if err != nil {
			return nil, nil, err
		}
	}
	if upper != nil {
		upperBytes, err = encodeSortKey(t.keyType, upper)
		if err != nil {
			return nil, nil, err
		}
	}
	var rows []types.Row
	var keys []any
	err = t.mgr.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(t.bucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		var k, v []byte
		if lowerBytes != nil {
			k, v = c.Seek(lowerBytes)
			if lowerExclusive {
				for k != nil && bytes.HasPrefix(k, lowerBytes) && len(k) == len(lowerBytes)+seqLen {
					k, v = c.Next()
				}
			}
		} else {
			k, v = c.First()
		}
		for ; k != nil; k, v = c.Next() {
			keyBytes := k[:len(k)-seqLen]
			if upperBytes != nil {
				cmp := bytes.Compare(keyBytes, upperBytes)
				if cmp > 0 || (cmp == 0 && upperExclusive) {
					break
				}
			}
			row, err := decodeRow(t.valueSchema, v)
			if err != nil {
				return err
			}
			// encodeSortKey writes VARCHAR/ANY keys as raw bytes with no
			// length prefix, so they are read back directly.
			var key any = string(keyBytes)
			if t.keyType != types.VARCHAR && t.keyType != types.ANY {
				if key, err = decodeValue(bytes.NewReader(keyBytes), t.keyType); err != nil {
					return err
				}
			}
			rows = append(rows, row)
			keys = append(keys, key)
		}
		return nil
	})
	return rows, keys, err
}

// Range performs a Sarg-driven range scan (§4.5 IndexScan), honoring
// inclusive/exclusive bounds on either side.
func (t *BplusTree) Range(lower any, lowerExclusive bool, upper any, upperExclusive bool) ([]types.Row, []any, error) {
	return t.iterRange(lower, lowerExclusive, upper, upperExclusive)
}

// Put inserts (key, row). If unique, any existing entry under key is
// overwritten; otherwise a new entry is appended.
func (t *BplusTree) Put(key any, row types.Row) error {
	keyBytes, err := encodeSortKey(t.keyType, key)
	if err != nil {
		return err
	}
	data, err := encodeRow(t.valueSchema, row)
	if err != nil {
		return err
	}
	return t.mgr.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(t.bucket)
		if b == nil {
			return ddberrors.Execution.New("btree bucket missing")
		}
		if t.unique {
			c := b.Cursor()
			prefix := keyBytes
			for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix) && len(k) == len(prefix)+seqLen; k, _ = c.Next() {
				if err := b.Delete(k); err != nil {
					return err
				}
				break
			}
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(compositeKey(keyBytes, seq), data)
	})
}

// Delete removes entries under key. If row is non-nil, only the entry
// whose value matches row is removed; otherwise every entry under key is
// removed. Returns the number of entries deleted.
func (t *BplusTree) Delete(key any, row types.Row) (int, error) {
	keyBytes, err := encodeSortKey(t.keyType, key)
	if err != nil {
		return 0, err
	}
	count := 0
	err = t.mgr.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(t.bucket)
		if b == nil {
			return ddberrors.Execution.New("btree bucket missing")
		}
		c := b.Cursor()
		var toDelete [][]byte
		for k, v := c.Seek(keyBytes); k != nil && bytes.HasPrefix(k, keyBytes) && len(k) == len(keyBytes)+seqLen; k, v = c.Next() {
			if row != nil {
				decoded, err := decodeRow(t.valueSchema, v)
				if err != nil {
					return err
				}
				if !types.Equal(decoded, row) {
					continue
				}
			}
			toDelete = append(toDelete, append([]byte(nil), k...))
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}

func (t *BplusTree) Stat() (Stat, error) {
	var s Stat
	err := t.mgr.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(t.bucket)
		if b == nil {
			return nil
		}
		stats := b.Stats()
		s.Entries = stats.KeyN
		s.LeafPages = stats.LeafPageN
		s.Depth = stats.Depth
		return nil
	})
	return s, err
}
