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

package join

import (
	"fmt"
	"math"

	"github.com/mitchellh/hashstructure"

	"github.com/devilsdb/ddb-go/internal/executor"
	"github.com/devilsdb/ddb-go/internal/extsort"
	"github.com/devilsdb/ddb-go/internal/storage"
	"github.com/devilsdb/ddb-go/internal/types"
	"github.com/devilsdb/ddb-go/internal/valexpr"
)

// DefaultHashMaxDepth caps the recursion of HashEqJ's build-side
// partitioning. It plays the role of the original's
// globals.DEFAULT_HASH_MAX_DEPTH; the value 4 is a chosen cap, not the
// original's.
const DefaultHashMaxDepth = 4

// HashEqJ is the recursive-partitioning hash equijoin: the left input is
// the build side, partitioned into NumMemoryBlocks buckets by a scrambled
// hash of its join key; while any bucket overflows its one-block writer
// budget, every bucket is re-partitioned with a larger modulus, up to
// DefaultHashMaxDepth times. The right input is the probe side, streamed
// once and, for each row, matched only against the single bucket its key
// hashes to. Grounded on the original join.hasheqj's `hasheqj-ours.py`
// reference solution -- the shipped `hasheqj.py` left `execute` as a stub
// and is only a source for `compiled`/`estimated`.
type HashEqJ struct {
	executor.Base
	Left, Right           executor.QPop
	LeftExprs, RightExprs []valexpr.Expr
	NumMemoryBlocks       int

	leftExecs, rightExecs []valexpr.Compiled
	leftSchema            types.RowType
}

func NewHashEqJ(ctx *executor.StatementContext, left, right executor.QPop, leftExprs, rightExprs []valexpr.Expr, numMemoryBlocks int) *HashEqJ {
	j := &HashEqJ{Left: left, Right: right, LeftExprs: leftExprs, RightExprs: rightExprs, NumMemoryBlocks: numMemoryBlocks}
	j.Init(ctx, j)
	return j
}

func (j *HashEqJ) Children() []executor.QPop { return []executor.QPop{j.Left, j.Right} }
func (j *HashEqJ) MemoryBlocksRequired() int { return j.NumMemoryBlocks }
func (j *HashEqJ) PstrMore() []string {
	lines := make([]string, len(j.LeftExprs), len(j.LeftExprs)+1)
	for i := range j.LeftExprs {
		lines[i] = j.LeftExprs[i].ToStr() + " = " + j.RightExprs[i].ToStr()
	}
	return append(lines, fmt.Sprintf("# memory blocks: %d", j.NumMemoryBlocks))
}

func (j *HashEqJ) Compiled() (executor.CompiledProps, error) {
	return j.Base.Compiled(func() (executor.CompiledProps, error) {
		leftProps, err := j.Left.Compiled()
		if err != nil {
			return executor.CompiledProps{}, err
		}
		rightProps, err := j.Right.Compiled()
		if err != nil {
			return executor.CompiledProps{}, err
		}
		out := fromInputsSchema(leftProps, rightProps)
		j.leftSchema = leftProps.OutputMetadata.ColumnTypes

		bothUnique := false
		colOffset := len(leftProps.OutputMetadata.ColumnNames)
		for i := range j.LeftExprs {
			lc, lok := columnInChild(j.LeftExprs[i], 0, leftProps)
			rc, rok := columnInChild(j.RightExprs[i], 1, rightProps)
			if !lok || !rok {
				continue
			}
			_, lu := leftProps.UniqueColumns[lc]
			_, ru := rightProps.UniqueColumns[rc]
			if lu && ru {
				bothUnique = true
				break
			}
		}
		unique := map[int]struct{}{}
		if bothUnique {
			for c := range leftProps.UniqueColumns {
				unique[c] = struct{}{}
			}
			for c := range rightProps.UniqueColumns {
				unique[colOffset+c] = struct{}{}
			}
		}
		out.UniqueColumns = unique

		leftExecs := make([]valexpr.Compiled, len(j.LeftExprs))
		for i, e := range j.LeftExprs {
			ex, err := valexpr.Compile(e, []valexpr.OutputLineage{leftProps.OutputLineage})
			if err != nil {
				return executor.CompiledProps{}, err
			}
			leftExecs[i] = ex
		}
		rightExecs := make([]valexpr.Compiled, len(j.RightExprs))
		for i, e := range j.RightExprs {
			ex, err := valexpr.Compile(e, []valexpr.OutputLineage{rightProps.OutputLineage})
			if err != nil {
				return executor.CompiledProps{}, err
			}
			rightExecs[i] = ex
		}
		j.leftExecs, j.rightExecs = leftExecs, rightExecs
		return out, nil
	})
}

func (j *HashEqJ) Estimated() (executor.EstimatedProps, error) {
	return j.Base.Estimated(func() (executor.CompiledProps, error) { return j.Compiled() },
		func(executor.CompiledProps) (executor.EstimatedProps, error) {
			leftEst, err := j.Left.Estimated()
			if err != nil {
				return executor.EstimatedProps{}, err
			}
			rightEst, err := j.Right.Estimated()
			if err != nil {
				return executor.EstimatedProps{}, err
			}
			leftBlocks, rightBlocks := leftEst.Blocks.Overall, rightEst.Blocks.Overall
			estimatedPasses := 0
			if leftBlocks > 0 && j.NumMemoryBlocks > 2 {
				estimatedPasses = int(math.Floor(math.Log(float64(leftBlocks)) / math.Log(float64(j.NumMemoryBlocks-1))))
			}
			reads := (leftBlocks + rightBlocks) * estimatedPasses
			writes := reads
			return executor.EstimatedProps{
				RowCount: leftEst.RowCount + rightEst.RowCount,
				RowSize:  leftEst.RowSize + rightEst.RowSize,
				Blocks: executor.StatsInBlocks{
					SelfReads:  reads,
					SelfWrites: writes,
					Overall:    leftBlocks + rightBlocks + reads + writes,
				},
			}, nil
		})
}

// hashJoinKey scrambles a structural hash of vals the way the original's
// HashEqJoinPop.hash scrambles Python's hash(): Go exposes no built-in
// value hash, so mitchellh/hashstructure (already a teacher dependency,
// here given a concrete use) computes the structural hash, and the same
// xor-multiply avalanche mix finishes scrambling it.
func hashJoinKey(vals []any) (uint32, error) {
	h, err := hashstructure.Hash(vals, nil)
	if err != nil {
		return 0, err
	}
	x := uint32(h)
	x = ((x >> 16) ^ x) * 0x45d9f3b
	x = ((x >> 16) ^ x) * 0x45d9f3b
	x = (x >> 16) ^ x
	return x, nil
}

// bucket is either a purely in-memory run of rows, or a spilled heap file
// (kept open so it can be rescanned while probing, and its name recorded
// so its tmp file is deleted once the join is done).
type bucket struct {
	rows []types.Row
	file *storage.HeapFile
	name string
}

func (b *bucket) load() ([]types.Row, error) {
	if b.file != nil {
		return b.file.IterScan(false)
	}
	return b.rows, nil
}

// partitionRows hash-partitions an in-memory row slice into mod buckets,
// spilling to a tmp heap file only for buckets whose one-block writer
// budget overflows.
func (j *HashEqJ) partitionRows(rows []types.Row, depth, mod int, tmpNames map[string]struct{}) (map[uint32]*bucket, error) {
	writers := make(map[uint32]*extsort.BufferedWriter, mod)
	files := make(map[uint32]*storage.HeapFile, mod)
	names := make(map[uint32]string, mod)
	for _, row := range rows {
		key, err := joinKey(j.leftExecs, row)
		if err != nil {
			return nil, err
		}
		h, err := hashJoinKey(key)
		if err != nil {
			return nil, err
		}
		id := h % uint32(mod)
		w, ok := writers[id]
		if !ok {
			f, name, err := j.Context.Tmp.New(depth, int(id), j.leftSchema)
			if err != nil {
				return nil, err
			}
			w = extsort.NewBufferedWriter(f, 1)
			writers[id] = w
			files[id] = f
			names[id] = name
			tmpNames[name] = struct{}{}
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	buckets := make(map[uint32]*bucket, len(writers))
	for id, w := range writers {
		if w.NumBlocksFlushed() > 0 {
			if err := w.Flush(); err != nil {
				return nil, err
			}
			buckets[id] = &bucket{file: files[id], name: names[id]}
		} else {
			// never spilled, but Tmp.New already created its (empty) tmp
			// file, so its name stays in tmpNames for cleanup.
			buckets[id] = &bucket{rows: w.Buffer(), name: names[id]}
		}
	}
	return buckets, nil
}

// buildBuckets runs the recursive partitioning pass on the left (build)
// input, returning the final bucket map, the modulus used to address it,
// and the set of tmp file names created along the way (for cleanup).
func (j *HashEqJ) buildBuckets() (map[uint32]*bucket, int, map[string]struct{}, error) {
	leftNext, err := j.Left.Execute()
	if err != nil {
		return nil, 0, nil, err
	}
	var all []types.Row
	for {
		row, ok, err := leftNext()
		if err != nil {
			return nil, 0, nil, err
		}
		if !ok {
			break
		}
		all = append(all, row)
	}

	tmpNames := map[string]struct{}{}
	mod := j.NumMemoryBlocks
	buckets, err := j.partitionRows(all, 0, mod, tmpNames)
	if err != nil {
		return nil, 0, nil, err
	}
	depth := 0
	for {
		anySpilled := false
		for _, b := range buckets {
			if b.file != nil {
				anySpilled = true
				break
			}
		}
		if !anySpilled || depth+1 > DefaultHashMaxDepth {
			return buckets, mod, tmpNames, nil
		}
		depth++
		newMod := j.NumMemoryBlocks * pow(j.NumMemoryBlocks-1, depth)
		newBuckets := make(map[uint32]*bucket)
		for _, b := range buckets {
			rows, err := b.load()
			if err != nil {
				return nil, 0, nil, err
			}
			sub, err := j.partitionRows(rows, depth, newMod, tmpNames)
			if err != nil {
				return nil, 0, nil, err
			}
			for id, sb := range sub {
				newBuckets[id] = sb
			}
		}
		buckets, mod = newBuckets, newMod
	}
}

func pow(base, exp int) int {
	r := 1
	for i := 0; i < exp; i++ {
		r *= base
	}
	return r
}

func (j *HashEqJ) Execute() (func() (types.Row, bool, error), error) {
	if _, err := j.Compiled(); err != nil {
		return nil, err
	}

	buckets, mod, tmpNames, err := j.buildBuckets()
	if err != nil {
		return nil, err
	}

	rightNext, err := j.Right.Execute()
	if err != nil {
		return nil, err
	}
	rightReader := extsort.NewBufferedReader(j.NumMemoryBlocks - 1)
	rightBufferNext := rightReader.IterBuffer(rightNext)

	var rightBuffer []types.Row
	rightIdx := 0
	var candidates []types.Row
	candIdx := 0
	var rightRow types.Row

	cleanup := func() error {
		for name := range tmpNames {
			if err := j.Context.Tmp.Delete(name); err != nil {
				return err
			}
		}
		return nil
	}

	advanceRightRow := func() (bool, error) {
		for {
			if rightIdx >= len(rightBuffer) {
				buf, err := rightBufferNext()
				if err != nil {
					return false, err
				}
				if buf == nil {
					return false, nil
				}
				rightBuffer = buf
				rightIdx = 0
				continue
			}
			rightRow = rightBuffer[rightIdx]
			rightIdx++
			key, err := joinKey(j.rightExecs, rightRow)
			if err != nil {
				return false, err
			}
			h, err := hashJoinKey(key)
			if err != nil {
				return false, err
			}
			b, ok := buckets[h%uint32(mod)]
			if !ok {
				continue
			}
			rows, err := b.load()
			if err != nil {
				return false, err
			}
			candidates = rows
			candIdx = 0
			return true, nil
		}
	}

	raw := func() (types.Row, bool, error) {
		for {
			for candIdx < len(candidates) {
				leftRow := candidates[candIdx]
				candIdx++
				leftKey, err := joinKey(j.leftExecs, leftRow)
				if err != nil {
					return nil, false, err
				}
				rightKey, err := joinKey(j.rightExecs, rightRow)
				if err != nil {
					return nil, false, err
				}
				if keysEqual(leftKey, rightKey) {
					return concat(leftRow, rightRow), true, nil
				}
			}
			ok, err := advanceRightRow()
			if err != nil {
				return nil, false, err
			}
			if !ok {
				if err := cleanup(); err != nil {
					return nil, false, err
				}
				return nil, false, nil
			}
		}
	}
	return executor.TraceExecute(&j.Base, "HashEqJ", raw), nil
}
