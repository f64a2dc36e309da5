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

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/devilsdb/ddb-go/internal/executor"
	"github.com/devilsdb/ddb-go/internal/metadata"
	"github.com/devilsdb/ddb-go/internal/planner"
	"github.com/devilsdb/ddb-go/internal/session"
	"github.com/devilsdb/ddb-go/internal/storage"
	"github.com/devilsdb/ddb-go/internal/types"
	"github.com/devilsdb/ddb-go/internal/valexpr"
)

// config is loaded from -config (if given) to seed a Session's Options
// before this demonstration runs; SQL parsing and the interactive REPL
// that would normally produce requests at runtime are out of scope
// (non-goals), so this entry point builds its statements directly
// through internal/planner's logical types instead, the same way the
// teacher's own _example/main.go builds its demonstration database
// directly through the sql package rather than by reading SQL text.
type config struct {
	Options session.Options `yaml:"session"`
}

func loadConfig(path string) (config, error) {
	cfg := config{Options: session.DefaultOptions()}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func main() {
	dbPath := flag.String("db", "ddb.db", "path to the storage file")
	configPath := flag.String("config", "", "path to a YAML session-options file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("loading config")
	}
	if cfg.Options.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	sm, err := storage.Open(*dbPath)
	if err != nil {
		logrus.WithError(err).Fatal("opening storage")
	}
	defer sm.Close()

	mm := metadata.NewManager(sm)
	ctx := &executor.StatementContext{
		SM:      sm,
		MM:      mm,
		Tmp:     sm.TmpFileFactory("tmp"),
		Profile: executor.NewProfileContext(),
	}

	s := session.New(ctx, os.Stdout)
	s.Options = cfg.Options
	s.Planner = planner.NewBaselinePlanner(planner.DefaultOptions())

	if err := runDemo(s); err != nil {
		logrus.WithError(err).Fatal("demo")
	}
}

// runDemo exercises a CREATE TABLE / INSERT / SELECT round trip,
// mirroring the connect-and-query walkthrough of the teacher's own
// _example/main.go.
func runDemo(s *session.Session) error {
	meta := metadata.BaseTableMetadata{
		TableMetadata: metadata.TableMetadata{
			ColumnNames: []string{"id", "name", "email"},
			ColumnTypes: types.RowType{types.INTEGER, types.VARCHAR, types.VARCHAR},
		},
		Name:                  "users",
		PrimaryKeyColumnIndex: intPtr(0),
	}

	resp, err := s.Execute(session.Statement{
		Kind:        session.KindCreateTable,
		CreateTable: &planner.CreateTableStatement{Metadata: meta},
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(s.Out, resp)

	resp, err = s.Execute(session.Statement{
		Kind: session.KindInsert,
		Insert: &planner.InsertStatement{
			Metadata: meta,
			Rows: []planner.RowLiteral{
				{int64(1), "Jane Doe", "jane@doe.com"},
				{int64(2), "John Doe", "john@doe.com"},
			},
		},
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(s.Out, resp)

	idRef := valexpr.NewNamedColumnRef("u", "id", types.INTEGER)
	nameRef := valexpr.NewNamedColumnRef("u", "name", types.VARCHAR)
	resp, err = s.Execute(session.Statement{
		Kind: session.KindSelect,
		Select: &planner.SelectBlock{
			From: []planner.BaseTableRef{{Alias: "u", Metadata: meta}},
			SelectExprs:   []valexpr.Expr{idRef, nameRef},
			SelectAliases: []string{"id", "name"},
		},
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(s.Out, resp)
	return nil
}

func intPtr(i int) *int { return &i }
