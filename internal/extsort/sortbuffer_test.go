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

package extsort

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/devilsdb/ddb-go/internal/storage"
	"github.com/devilsdb/ddb-go/internal/types"
)

func intCompare(this, that types.Row) int {
	a, b := this[0].(int64), that[0].(int64)
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func newTmpManager(t *testing.T) *storage.Manager {
	t.Helper()
	dir := t.TempDir()
	mgr, err := storage.Open(dir + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func tmpFactory(mgr *storage.Manager) (TmpFileCreate, TmpFileDelete) {
	names := map[*storage.HeapFile]string{}
	create := func(level, run int) (*storage.HeapFile, error) {
		name := fmt.Sprintf("test.%d.%d", level, run)
		f, err := mgr.HeapFile(name, types.RowType{types.INTEGER}, true)
		if err == nil {
			names[f] = name
		}
		return f, err
	}
	del := func(f *storage.HeapFile) error {
		return mgr.DeleteHeapFile(names[f])
	}
	return create, del
}

func TestExtSortBufferInMemory(t *testing.T) {
	mgr := newTmpManager(t)
	create, del := tmpFactory(mgr)
	buf, err := New(intCompare, create, del, 3, 0, false)
	require.NoError(t, err)
	for _, v := range []int64{5, 3, 4, 1, 2} {
		require.NoError(t, buf.Add(types.Row{v}))
	}
	var got []int64
	err = buf.IterAndClear(func(r types.Row) error {
		got = append(got, r[0].(int64))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3, 4, 5}, got)
}

func TestExtSortBufferDedup(t *testing.T) {
	mgr := newTmpManager(t)
	create, del := tmpFactory(mgr)
	buf, err := New(intCompare, create, del, 3, 0, true)
	require.NoError(t, err)
	for _, v := range []int64{2, 1, 2, 1, 3} {
		require.NoError(t, buf.Add(types.Row{v}))
	}
	var got []int64
	err = buf.IterAndClear(func(r types.Row) error {
		got = append(got, r[0].(int64))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, got)
}

func TestExtSortBufferSpillsAndMerges(t *testing.T) {
	mgr := newTmpManager(t)
	create, del := tmpFactory(mgr)
	// 2000 rows at 32 estimated bytes each overflow the 3-block budget
	// several times, so Add spills sorted runs and IterAndClear merges
	// them down to the final fan-in of 2.
	buf, err := New(intCompare, create, del, 3, 2, false)
	require.NoError(t, err)
	values := make([]int64, 2000)
	want := make([]int64, 2000)
	for i := range values {
		values[i] = int64((i * 7919) % 2000)
		want[i] = int64(i)
	}
	for _, v := range values {
		require.NoError(t, buf.Add(types.Row{v}))
	}
	var got []int64
	err = buf.IterAndClear(func(r types.Row) error {
		got = append(got, r[0].(int64))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestExtSortBufferRejectsSmallBudgets(t *testing.T) {
	mgr := newTmpManager(t)
	create, del := tmpFactory(mgr)
	_, err := New(intCompare, create, del, 2, 0, false)
	require.Error(t, err)
	_, err = New(intCompare, create, del, 3, 1, false)
	require.Error(t, err)
}

func TestBufferedWriterFlushCounter(t *testing.T) {
	mgr := newTmpManager(t)
	f, err := mgr.HeapFile("writer_test", types.RowType{types.INTEGER}, true)
	require.NoError(t, err)
	w := NewBufferedWriter(f, 1)
	require.Equal(t, 0, w.NumBlocksFlushed())
	for i := int64(0); i < 500; i++ {
		require.NoError(t, w.Write(types.Row{i}))
	}
	require.NoError(t, w.Flush())
	require.Greater(t, w.NumBlocksFlushed(), 0)
}

func TestBufferedReaderBatchesAndRejectsOversizedRow(t *testing.T) {
	r := NewBufferedReader(1)
	rows := []types.Row{{"short"}}
	i := 0
	next := r.IterBuffer(func() (types.Row, bool, error) {
		if i >= len(rows) {
			return nil, false, nil
		}
		row := rows[i]
		i++
		return row, true, nil
	})
	batch, err := next()
	require.NoError(t, err)
	require.Equal(t, rows, batch)

	oversized := make([]byte, types.BlockSize*2)
	j := 0
	bad := []types.Row{{string(oversized)}}
	next2 := r.IterBuffer(func() (types.Row, bool, error) {
		if j >= len(bad) {
			return nil, false, nil
		}
		row := bad[j]
		j++
		return row, true, nil
	})
	_, err = next2()
	require.Error(t, err)
}
