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

package valexpr

import (
	"fmt"
	"strings"

	"github.com/devilsdb/ddb-go/internal/ddberrors"
	"github.com/devilsdb/ddb-go/internal/types"
)

// funCall is the common shape of a built-in scalar function call.
type funCall struct {
	base
	name string
}

func (f *funCall) ToStr() string {
	parts := make([]string, len(f.children))
	for i, c := range f.children {
		parts[i] = c.ToStr()
	}
	return fmt.Sprintf("%s(%s)", f.name, strings.Join(parts, ", "))
}
func (f *funCall) IsOpEquivalent(other Expr) bool {
	o, ok := other.(*funCall)
	return ok && o.name == f.name && o.valtype == f.valtype
}

type LOWER struct{ *funCall }

func NewLOWER(arg Expr) (Expr, error) {
	c, err := castChildrenTo([]Expr{arg}, types.VARCHAR)
	if err != nil {
		return nil, err
	}
	return &LOWER{&funCall{base{children: c, valtype: types.VARCHAR}, "LOWER"}}, nil
}
func (l *LOWER) CopyWithNewChildren(children []Expr) Expr {
	return &LOWER{&funCall{base{children: children, valtype: types.VARCHAR}, "LOWER"}}
}
func (l *LOWER) compileSelf(children []Compiled) Compiled {
	arg := children[0]
	return func(rows []types.Row) (any, error) {
		v, err := arg(rows)
		if err != nil {
			return nil, err
		}
		return strings.ToLower(v.(string)), nil
	}
}

type UPPER struct{ *funCall }

func NewUPPER(arg Expr) (Expr, error) {
	c, err := castChildrenTo([]Expr{arg}, types.VARCHAR)
	if err != nil {
		return nil, err
	}
	return &UPPER{&funCall{base{children: c, valtype: types.VARCHAR}, "UPPER"}}, nil
}
func (u *UPPER) CopyWithNewChildren(children []Expr) Expr {
	return &UPPER{&funCall{base{children: children, valtype: types.VARCHAR}, "UPPER"}}
}
func (u *UPPER) compileSelf(children []Compiled) Compiled {
	arg := children[0]
	return func(rows []types.Row) (any, error) {
		v, err := arg(rows)
		if err != nil {
			return nil, err
		}
		return strings.ToUpper(v.(string)), nil
	}
}

type REPLACE struct{ *funCall }

func NewREPLACE(s, old, new Expr) (Expr, error) {
	c, err := castChildrenTo([]Expr{s, old, new}, types.VARCHAR)
	if err != nil {
		return nil, err
	}
	return &REPLACE{&funCall{base{children: c, valtype: types.VARCHAR}, "REPLACE"}}, nil
}
func (r *REPLACE) CopyWithNewChildren(children []Expr) Expr {
	return &REPLACE{&funCall{base{children: children, valtype: types.VARCHAR}, "REPLACE"}}
}
func (r *REPLACE) compileSelf(children []Compiled) Compiled {
	s, old, new := children[0], children[1], children[2]
	return func(rows []types.Row) (any, error) {
		sv, err := s(rows)
		if err != nil {
			return nil, err
		}
		ov, err := old(rows)
		if err != nil {
			return nil, err
		}
		nv, err := new(rows)
		if err != nil {
			return nil, err
		}
		return strings.ReplaceAll(sv.(string), ov.(string), nv.(string)), nil
	}
}

// CAST converts its argument to the target ValType, using the ISO-8601
// round trip between DATETIME and VARCHAR (§4.1, §9).
type CAST struct {
	base
	target types.ValType
}

func NewCAST(arg Expr, target types.ValType) (Expr, error) {
	if !arg.ValType().CanCastTo(target) {
		return nil, ddberrors.Validation.New(fmt.Sprintf("cannot CAST %s to %s", arg.ValType(), target))
	}
	return &CAST{base{children: []Expr{arg}, valtype: target}, target}, nil
}
func (c *CAST) ToStr() string {
	return fmt.Sprintf("CAST[AS: %s](%s)", c.target, c.children[0].ToStr())
}
func (c *CAST) CopyWithNewChildren(children []Expr) Expr {
	return &CAST{base{children: children, valtype: c.valtype}, c.target}
}
func (c *CAST) IsOpEquivalent(other Expr) bool {
	o, ok := other.(*CAST)
	return ok && o.target == c.target
}
func (c *CAST) compileSelf(children []Compiled) Compiled {
	arg := children[0]
	argType := c.children[0].ValType()
	target := c.target
	return func(rows []types.Row) (any, error) {
		v, err := arg(rows)
		if err != nil {
			return nil, err
		}
		if argType == target {
			return v, nil
		}
		out, err := types.CastFrom(target, v)
		if err != nil {
			return nil, ddberrors.Execution.New(err.Error())
		}
		return out, nil
	}
}
