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

// Package session drives one client's sequence of already-validated
// statements against a shared StatementContext (§5/§6): it holds the
// session's options, picks a planner, executes the resulting physical
// plan, and reports the status line callers print. Parsing a request
// into a Statement, and the REPL that reads one interactively, are both
// out of scope (non-goals); Session.Execute's input is the already-bound
// logical statement a parser/binder would hand it, mirroring
// internal/planner's own input boundary.
package session

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/devilsdb/ddb-go/internal/ddberrors"
	"github.com/devilsdb/ddb-go/internal/executor"
	"github.com/devilsdb/ddb-go/internal/planner"
)

var log = logrus.WithField("component", "session")

// Kind identifies which field of a Statement is populated.
type Kind int

const (
	KindSelect Kind = iota
	KindInsert
	KindDelete
	KindCreateTable
	KindCreateIndex
	KindAnalyzeStats
	KindShowTables
	KindSetOption
	KindCommit
	KindRollback
)

// Statement is one already-validated request for a Session to execute.
// Exactly the field named by Kind is populated. Grounded on the shape of
// requests original_source/.../ddb/session.py's Session.request
// dispatches on (SetOptionLop/CommitLop/RollbackLop taken directly by the
// session, everything else handed to the planner).
type Statement struct {
	Kind Kind

	Select       *planner.SelectBlock
	Insert       *planner.InsertStatement
	Delete       *planner.DeleteStatement
	CreateTable  *planner.CreateTableStatement
	CreateIndex  *planner.CreateIndexStatement
	AnalyzeStats *planner.AnalyzeStatsStatement
	ShowTables   *planner.ShowTablesStatement

	// SET <Option> = <Value>
	Option string
	Value  string
}

// Options are the per-session settings named in §6 ("Configurable
// options", "Session options"). Grounded on
// original_source/.../ddb/session.py's Session.Options.
type Options struct {
	Autocommit bool   `yaml:"autocommit"`
	ReadOnly   bool   `yaml:"read_only"`
	Debug      bool   `yaml:"debug"`
	Planner    string `yaml:"planner"`
}

// DefaultOptions matches the original's dataclass field defaults.
func DefaultOptions() Options {
	return Options{Autocommit: true, ReadOnly: false, Debug: false, Planner: "baseline"}
}

// Session holds one client's options and in-progress explicit
// transaction state across a sequence of Execute calls. Transaction
// lifecycle mechanics (actually beginning/committing/aborting a nested
// store transaction) are an explicit spec non-goal and a black-box
// collaborator's job; this type only tracks whether one is logically
// open, matching the "single active session, no locking beyond the
// store's own" assumption (§5, "Locking").
type Session struct {
	Context  *executor.StatementContext
	Options  Options
	Planner  *planner.BaselinePlanner
	Out      io.Writer
	inExplicitTx bool
}

// New builds a Session with DefaultOptions, a BaselinePlanner configured
// from them, and Out set to out (a nil out disables row output); ctx's
// SM/MM/Tmp must already be initialized by the caller (database/storage
// bring-up is outside this package's job -- cmd/ddb wires it).
func New(ctx *executor.StatementContext, out io.Writer) *Session {
	opts := DefaultOptions()
	return &Session{
		Context: ctx,
		Options: opts,
		Planner: planner.NewBaselinePlanner(plannerOptionsFrom(opts)),
		Out:     out,
	}
}

func plannerOptionsFrom(_ Options) planner.Options {
	return planner.DefaultOptions()
}

// Execute runs one Statement and returns its status line, the same shape
// the executor's command operators already return ("SELECT n", "INSERT
// n", ..., "SET", "COMMIT", "ROLLBACK"). Grounded on
// original_source/.../ddb/session.py's Session.request, minus the
// transaction-wrapping and parse-tree handling that package's
// responsibilities (transactions, parsing) don't cover.
func (s *Session) Execute(stmt Statement) (string, error) {
	log.WithField("kind", stmt.Kind).Debug("request")
	switch stmt.Kind {
	case KindSetOption:
		return s.setOption(stmt.Option, stmt.Value)
	case KindCommit:
		if !s.inExplicitTx {
			return "", ddberrors.Execution.New("no transaction to COMMIT")
		}
		s.inExplicitTx = false
		return "COMMIT", nil
	case KindRollback:
		if !s.inExplicitTx {
			return "", ddberrors.Execution.New("no transaction to ROLLBACK")
		}
		s.inExplicitTx = false
		return "ROLLBACK", nil
	}

	cpop, qpop, err := s.plan(stmt)
	if err != nil {
		return "", err
	}
	if qpop != nil {
		return s.executeQuery(qpop)
	}
	return cpop.Execute()
}

func (s *Session) plan(stmt Statement) (executor.CPop, executor.QPop, error) {
	switch stmt.Kind {
	case KindSelect:
		qpop, err := s.Planner.PlanSelect(s.Context, stmt.Select)
		return nil, qpop, err
	case KindInsert:
		cpop, err := s.Planner.PlanInsert(s.Context, stmt.Insert)
		return cpop, nil, err
	case KindDelete:
		cpop, err := s.Planner.PlanDelete(s.Context, stmt.Delete)
		return cpop, nil, err
	case KindCreateTable:
		return s.Planner.PlanCreateTable(s.Context, stmt.CreateTable), nil, nil
	case KindCreateIndex:
		return s.Planner.PlanCreateIndex(s.Context, stmt.CreateIndex), nil, nil
	case KindAnalyzeStats:
		return s.Planner.PlanAnalyzeStats(s.Context, stmt.AnalyzeStats), nil, nil
	case KindShowTables:
		return s.Planner.PlanShowTables(s.Context, stmt.ShowTables), nil, nil
	default:
		return nil, nil, ddberrors.Execution.New(fmt.Sprintf("unrecognized statement kind %d", stmt.Kind))
	}
}

// executeQuery iterates qpop's rows, writing each to s.Out, and returns
// "SELECT n". Grounded on the original's `for row in pop.execute(): print(row)`.
func (s *Session) executeQuery(qpop executor.QPop) (string, error) {
	props, err := qpop.Compiled()
	if err != nil {
		return "", err
	}
	if s.Out != nil {
		fmt.Fprintln(s.Out, props.OutputMetadata.Pstr())
	}
	next, err := qpop.Execute()
	if err != nil {
		return "", err
	}
	count := 0
	for {
		row, ok, err := next()
		if err != nil {
			return "", err
		}
		if !ok {
			break
		}
		if s.Out != nil {
			fmt.Fprintln(s.Out, row)
		}
		count++
	}
	log.WithField("blocks", executor.TotalMemoryBlocksRequired(qpop)).Debug("query executed")
	return fmt.Sprintf("SELECT %d", count), nil
}

// setOption applies a SET <option> = <value>, the session-level handling
// original_source/.../ddb/session.py's Session.set_option performs ahead
// of the generic OptionsBase.set_from_str (that machinery doesn't exist
// here, so each option is validated explicitly).
func (s *Session) setOption(option, value string) (string, error) {
	switch option {
	case "autocommit":
		on, err := parseOnOff(value)
		if err != nil {
			return "", err
		}
		if !s.Options.Autocommit && on && s.inExplicitTx {
			return "", ddberrors.Execution.New("before setting AUTOCOMMIT ON, commit or abort the ongoing transaction")
		}
		s.Options.Autocommit = on
	case "transaction":
		switch value {
		case "read only":
			s.Options.ReadOnly = true
		case "read write":
			if s.Options.ReadOnly && s.inExplicitTx {
				return "", ddberrors.Execution.New("before setting TRANSACTION READ WRITE, commit or abort the ongoing READ ONLY transaction")
			}
			s.Options.ReadOnly = false
		default:
			return "", ddberrors.Validation.New("unknown TRANSACTION mode " + value)
		}
	case "debug":
		on, err := parseOnOff(value)
		if err != nil {
			return "", err
		}
		s.Options.Debug = on
		if on {
			logrus.SetLevel(logrus.DebugLevel)
		} else {
			logrus.SetLevel(logrus.InfoLevel)
		}
	case "planner":
		if value != "baseline" {
			return "", ddberrors.Configuration.New("only the baseline planner is implemented; " + value + " is out of scope")
		}
		s.Options.Planner = value
	case "index_join":
		on, err := parseOnOff(value)
		if err != nil {
			return "", err
		}
		s.Planner.Options.IndexJoin = on
	case "sort_merge_join":
		on, err := parseOnOff(value)
		if err != nil {
			return "", err
		}
		s.Planner.Options.SortMergeJoin = on
	case "hash_join":
		on, err := parseOnOff(value)
		if err != nil {
			return "", err
		}
		s.Planner.Options.HashJoin = on
	default:
		return "", ddberrors.Validation.New("SET option unknown: " + option)
	}
	if !s.Options.Autocommit {
		s.inExplicitTx = true
	}
	return "SET", nil
}

func parseOnOff(value string) (bool, error) {
	switch value {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, ddberrors.Validation.New("expected on/off, got " + value)
	}
}
