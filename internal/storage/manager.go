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

// Package storage is the black-box storage collaborator (§6): heap files
// and B+trees over an embedded key/value store, exposing exactly the get /
// iter_scan / put / batch_append / truncate / delete / stat contract the
// rest of the execution subsystem relies on. It is backed by
// github.com/boltdb/bolt, the same embedded store family the teacher repo
// depends on directly.
package storage

import (
	"fmt"

	"github.com/boltdb/bolt"
	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"github.com/devilsdb/ddb-go/internal/ddberrors"
	"github.com/devilsdb/ddb-go/internal/types"
)

var log = logrus.WithField("component", "storage")

// Manager owns the single bolt.DB backing all base tables, indices, and
// scratch (tmp) files for one database instance.
type Manager struct {
	db *bolt.DB
}

func Open(path string) (*Manager, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, ddberrors.Execution.New(fmt.Sprintf("opening storage file %s: %v", path, err))
	}
	return &Manager{db: db}, nil
}

func (m *Manager) Close() error { return m.db.Close() }

// HeapFile opens (creating if requested) the heap-file-backed bucket for
// name, with the given row schema.
func (m *Manager) HeapFile(name string, schema types.RowType, createIfNotExists bool) (*HeapFile, error) {
	bucket := []byte("heap:" + name)
	if createIfNotExists {
		if err := m.db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(bucket)
			return err
		}); err != nil {
			return nil, ddberrors.Execution.New(err.Error())
		}
	}
	return &HeapFile{mgr: m, bucket: bucket, schema: schema}, nil
}

func (m *Manager) DeleteHeapFile(name string) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		return tx.DeleteBucket([]byte("heap:" + name))
	})
}

// BplusTree opens (creating if requested) the B+tree-backed bucket for
// name, keyed by keyType with value schema valueSchema. unique controls
// whether Put overwrites an existing key or appends a new entry under it.
func (m *Manager) BplusTree(name string, keyType types.ValType, valueSchema types.RowType, unique, createIfNotExists bool) (*BplusTree, error) {
	bucket := []byte("btree:" + name)
	if createIfNotExists {
		if err := m.db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(bucket)
			return err
		}); err != nil {
			return nil, ddberrors.Execution.New(err.Error())
		}
	}
	return &BplusTree{mgr: m, bucket: bucket, keyType: keyType, valueSchema: valueSchema, unique: unique}, nil
}

func (m *Manager) DeleteBplusTree(name string) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		return tx.DeleteBucket([]byte("btree:" + name))
	})
}

// TmpFileFactory names scratch heap files created by external-memory
// operators (sort runs, hash-join partitions). Each name is unique per
// process so concurrent operator instances never collide, using
// satori/go.uuid the way the teacher's auth package mints session tokens.
type TmpFileFactory struct {
	mgr    *Manager
	prefix string
}

func (m *Manager) TmpFileFactory(operatorPrefix string) *TmpFileFactory {
	return &TmpFileFactory{mgr: m, prefix: operatorPrefix}
}

// New creates a fresh tmp heap file for the given schema, named after the
// operator prefix, a (level, run) pair, and a random suffix.
func (f *TmpFileFactory) New(level, run int, schema types.RowType) (*HeapFile, string, error) {
	name := fmt.Sprintf(".tmp.%s.%d.%d.%s", f.prefix, level, run, uuid.NewV4().String())
	hf, err := f.mgr.HeapFile(name, schema, true)
	if err != nil {
		return nil, "", err
	}
	log.Debugf("created tmp file %s", name)
	return hf, name, nil
}

// Delete removes a tmp heap file created by New.
func (f *TmpFileFactory) Delete(name string) error {
	return f.mgr.DeleteHeapFile(name)
}
