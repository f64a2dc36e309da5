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

// Package executor defines the physical query-plan operator contract (§4.4)
// and the CPop interface that executor/command's operators (§4.11)
// implement: a streaming-iterator interface every
// leaf, row, sort, join, and aggregation operator implements, along with
// the compiled/estimated/measured property triad and per-call observability
// the teacher's engine.go wires through opentracing spans.
package executor

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/devilsdb/ddb-go/internal/ddberrors"
	"github.com/devilsdb/ddb-go/internal/metadata"
	"github.com/devilsdb/ddb-go/internal/storage"
	"github.com/devilsdb/ddb-go/internal/types"
	"github.com/devilsdb/ddb-go/internal/valexpr"
)

// StatementContext carries the handles each statement's operators need:
// storage/metadata managers, the tmp-file factory for spill-capable
// operators, and a profile context for measured-stats bookkeeping.
type StatementContext struct {
	SM  *storage.Manager
	MM  *metadata.Manager
	Tmp *storage.TmpFileFactory

	Profile *ProfileContext
}

// StatsInBlocks summarizes block-level I/O: reads/writes performed
// directly by an operator (Self*) versus the total across its subtree
// (Overall).
type StatsInBlocks struct {
	SelfReads  int
	SelfWrites int
	Overall    int
}

// CompiledProps are the schema-level facts about an operator's output,
// derived once from its plan shape (not from running it): output schema,
// column lineage, any guaranteed ordering, and any guaranteed-unique
// columns.
type CompiledProps struct {
	OutputMetadata metadata.TableMetadata
	OutputLineage  valexpr.OutputLineage
	OrderedColumns []int
	OrderedAsc     []bool
	UniqueColumns  map[int]struct{}
}

// ColumnInOutput reports the output column index e refers to, if any.
func (p CompiledProps) ColumnInOutput(e valexpr.Expr, inputIndex int) (int, bool) {
	switch x := e.(type) {
	case *valexpr.RelativeColumnRef:
		if x.InputIndex() == inputIndex {
			return x.ColumnIndex(), true
		}
	case *valexpr.NamedColumnRef:
		return valexpr.FindColumnInLineage(x.TableAlias(), x.ColumnName(), p.OutputLineage)
	}
	return 0, false
}

// IsOrdered checks whether the output is already sorted by exprs (each
// entry of ascRequired may be nil to accept either direction), returning
// the actual per-expression ascending/descending flags if so.
func (p CompiledProps) IsOrdered(exprs []valexpr.Expr, ascRequired []*bool) ([]bool, bool) {
	if len(p.OrderedColumns) < len(exprs) {
		return nil, false
	}
	actual := make([]bool, 0, len(exprs))
	for i, e := range exprs {
		col, asc := p.OrderedColumns[i], p.OrderedAsc[i]
		if ascRequired[i] != nil && *ascRequired[i] != asc {
			return nil, false
		}
		exprCol, ok := p.ColumnInOutput(e, 0)
		if !ok || exprCol != col {
			return nil, false
		}
		actual = append(actual, asc)
	}
	return actual, true
}

// FromInputs builds the default CompiledProps for a binary operator that
// concatenates its two children's schemas (a join's natural default):
// no inherited ordering, no inherited uniqueness, since the join method
// determines both and must override them explicitly.
func FromInputs(left, right CompiledProps) CompiledProps {
	return CompiledProps{
		OutputMetadata: metadata.TableMetadata{
			ColumnNames: append(append([]string{}, left.OutputMetadata.ColumnNames...), right.OutputMetadata.ColumnNames...),
			ColumnTypes: append(append(types.RowType{}, left.OutputMetadata.ColumnTypes...), right.OutputMetadata.ColumnTypes...),
		},
		OutputLineage: append(append(valexpr.OutputLineage{}, left.OutputLineage...), right.OutputLineage...),
		UniqueColumns: map[int]struct{}{},
	}
}

// EstimatedProps are the cost-based estimates (§4.4) a planner consults:
// projected output size and the I/O this operator will incur per pass,
// plus any one-time extra cost on the first pass (e.g. building a hash
// table), kept separate so repeated passes aren't over-charged for it.
type EstimatedProps struct {
	RowCount       int64
	RowSize        int
	Blocks         StatsInBlocks
	BlocksExtraInit *StatsInBlocks
}

// MeasuredProps are the runtime-observed stats accumulated by each
// operator's Base (via TraceExecute) across every Execute() call.
type MeasuredProps struct {
	NumExecuteCalls int
	RowsYielded     MinMaxSum
	NsElapsed       MinMaxSum
	MinBlocks       StatsInBlocks
	MaxBlocks       StatsInBlocks
	SumBlocks       StatsInBlocks
}

// MinMaxSum tracks the minimum, maximum, and running total of some
// per-call measurement.
type MinMaxSum struct {
	Min, Max int64
	Sum      int64
	n        int
}

func (s *MinMaxSum) Observe(v int64) {
	if s.n == 0 || v < s.Min {
		s.Min = v
	}
	if s.n == 0 || v > s.Max {
		s.Max = v
	}
	s.Sum += v
	s.n++
}

// Sarg is a range-search argument (§4.5/§4.10): either an equality probe
// (key_lower == key_upper, both bounds inclusive) or a bounded range scan.
type Sarg struct {
	IsRange        bool
	KeyLower       valexpr.Expr
	KeyUpper       valexpr.Expr
	LowerExclusive bool
	UpperExclusive bool
}

func (s Sarg) String() string {
	lo, hi := "", ""
	if s.KeyLower != nil {
		lo = s.KeyLower.ToStr()
	}
	if s.KeyUpper != nil {
		hi = s.KeyUpper.ToStr()
	}
	open, shut := "[", "]"
	if s.LowerExclusive {
		open = "("
	}
	if s.UpperExclusive {
		shut = ")"
	}
	return fmt.Sprintf("%s%s, %s%s", open, lo, hi, shut)
}

// QPop is a physical query-plan operator: a node in an executable plan
// tree that, when executed, streams output rows lazily.
type QPop interface {
	Children() []QPop
	Compiled() (CompiledProps, error)
	Estimated() (EstimatedProps, error)
	MemoryBlocksRequired() int
	// Execute returns a lazy row iterator: calling next repeatedly yields
	// rows until (nil, false, nil); a non-nil error aborts the scan.
	Execute() (next func() (types.Row, bool, error), err error)
	PstrMore() []string
}

// CPop is a physical command-plan operator (§4.11): DDL/DML statements
// that execute once and produce a textual response rather than a row
// stream.
type CPop interface {
	Execute() (string, error)
	PstrMore() []string
}

// Base is embedded by every QPop implementation to share the
// caching/observability machinery the teacher's engine.go-style operators
// need: memoized Compiled()/Estimated(), span-wrapped Execute() timing,
// and the pretty-printer.
type Base struct {
	Context *StatementContext
	Self    QPop // set by the embedding operator via Init, for dynamic dispatch

	mu            sync.Mutex
	compiled      *CompiledProps
	compiledErr   error
	estimated     *EstimatedProps
	estimatedErr  error
	measured      MeasuredProps
}

// Init must be called by every QPop constructor immediately after
// allocating the operator, supplying ctx and a reference to the concrete
// operator (self) so Base's helper methods can call back into the
// subclass-specific Compile/Estimate logic.
func (b *Base) Init(ctx *StatementContext, self QPop) {
	b.Context = ctx
	b.Self = self
}

// CompileFunc/EstimateFunc are implemented per concrete operator and
// invoked exactly once (memoized by Base).
type CompileFunc func() (CompiledProps, error)
type EstimateFunc func(compiled CompiledProps) (EstimatedProps, error)

// Compiled memoizes compileFn's result, matching the teacher's
// cached_property pattern for CompiledProps.
func (b *Base) Compiled(compileFn CompileFunc) (CompiledProps, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.compiled == nil && b.compiledErr == nil {
		props, err := compileFn()
		if err != nil {
			b.compiledErr = err
		} else {
			b.compiled = &props
		}
	}
	if b.compiledErr != nil {
		return CompiledProps{}, b.compiledErr
	}
	return *b.compiled, nil
}

func (b *Base) Estimated(compileFn CompileFunc, estimateFn EstimateFunc) (EstimatedProps, error) {
	compiled, err := b.Compiled(compileFn)
	if err != nil {
		return EstimatedProps{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.estimated == nil && b.estimatedErr == nil {
		props, err := estimateFn(compiled)
		if err != nil {
			b.estimatedErr = err
		} else {
			b.estimated = &props
		}
	}
	if b.estimatedErr != nil {
		return EstimatedProps{}, b.estimatedErr
	}
	return *b.estimated, nil
}

// VoidCachedProps invalidates this operator's memoized Compiled/Estimated
// results (and, unless shallow, every descendant's too), forcing
// recomputation on next access.
func (b *Base) VoidCachedProps(shallow bool) {
	b.mu.Lock()
	b.compiled, b.compiledErr = nil, nil
	b.estimated, b.estimatedErr = nil, nil
	b.mu.Unlock()
	if !shallow {
		for _, c := range b.Self.Children() {
			if v, ok := c.(interface{ VoidCachedProps(bool) }); ok {
				v.VoidCachedProps(false)
			}
		}
	}
}

// TotalMemoryBlocksRequired sums this operator's memory budget with every
// descendant's.
func TotalMemoryBlocksRequired(p QPop) int {
	total := p.MemoryBlocksRequired()
	for _, c := range p.Children() {
		total += TotalMemoryBlocksRequired(c)
	}
	return total
}

// TraceExecute wraps an operator's raw next-row function with an
// opentracing span covering the whole scan and per-call measured-stats
// bookkeeping (rows yielded, elapsed ns), the way the teacher's engine
// wraps node execution for its own tracing.
func TraceExecute(b *Base, opName string, rawNext func() (types.Row, bool, error)) func() (types.Row, bool, error) {
	span := opentracing.StartSpan(opName)
	start := time.Now()
	rows := int64(0)
	return func() (types.Row, bool, error) {
		row, ok, err := rawNext()
		if err != nil {
			span.SetTag("error", true)
			span.Finish()
			return nil, false, err
		}
		if !ok {
			b.mu.Lock()
			b.measured.NumExecuteCalls++
			b.measured.RowsYielded.Observe(rows)
			b.measured.NsElapsed.Observe(time.Since(start).Nanoseconds())
			b.mu.Unlock()
			span.SetTag("rows", rows)
			span.Finish()
			return nil, false, nil
		}
		rows++
		return row, true, nil
	}
}

// Measured returns the accumulated MeasuredProps for this operator alone
// (callers that want subtree totals should walk Children() themselves, as
// the teacher's own pstr() does).
func (b *Base) Measured() MeasuredProps {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.measured
}

// Pstr pretty-prints the plan rooted at p, one line per node plus each
// node's PstrMore() lines, indented by depth -- matching the teacher's
// ASCII-tree Pstr conventions used throughout sql/plan's String() methods.
func Pstr(p QPop, indent int) []string {
	prefix := ""
	if indent > 0 {
		prefix = strings.Repeat("    ", indent-1) + `\___`
	}
	lines := []string{fmt.Sprintf("%s%T", prefix, p)}
	childPrefix := strings.Repeat("    ", indent) + "| "
	for _, s := range p.PstrMore() {
		lines = append(lines, childPrefix+s)
	}
	for _, c := range p.Children() {
		lines = append(lines, Pstr(c, indent+1)...)
	}
	return lines
}

// ProfileContext is the statement-wide profiling handle carried by
// StatementContext. It holds no stats of its own: each operator's measured
// stats live in its Base (see Base.Measured).
type ProfileContext struct {
	mu sync.Mutex
}

func NewProfileContext() *ProfileContext { return &ProfileContext{} }

// ErrNotOrdered is returned by operators asked to assume an ordering their
// input cannot actually guarantee.
var ErrNotOrdered = ddberrors.Execution.New("input is not ordered as required")
