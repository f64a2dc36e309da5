// Copyright 2020-2021 Dolthub, Inc.
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

// Package regex implements the REGEXPLIKE matching behind the value
// expression of the same name, as a pluggable engine registry so a faster
// engine can be swapped in without touching call sites.
package regex

import (
	"regexp"
	"sync"

	errors "gopkg.in/src-d/go-errors.v1"
)

var (
	ErrRegexNameEmpty    = errors.NewKind("name cannot be empty")
	ErrRegexNameInUse    = errors.NewKind("engine %q is already registered")
	ErrRegexNameNotFound = errors.NewKind("engine %q is not registered")
)

// Matcher reports whether a compiled pattern matches a string.
type Matcher interface {
	Match(s string) bool
}

// Disposer releases resources held by a Matcher built by an engine that
// needs explicit cleanup (e.g. a cgo regex library). The "go" engine's
// Disposer is a no-op.
type Disposer interface {
	Dispose()
}

// Factory constructs a Matcher/Disposer pair for the given pattern.
type Factory func(pattern string) (Matcher, Disposer, error)

var (
	mu      sync.RWMutex
	engines = map[string]Factory{}
	order   []string
	def     = "go"
)

func init() {
	Register("go", newGoEngine)
}

func newGoEngine(pattern string) (Matcher, Disposer, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, nil, err
	}
	return goMatcher{re}, noopDisposer{}, nil
}

type goMatcher struct{ re *regexp.Regexp }

func (m goMatcher) Match(s string) bool { return m.re.MatchString(s) }

type noopDisposer struct{}

func (noopDisposer) Dispose() {}

// Register adds a new regex engine under the given name. It is a fatal
// configuration error (ErrRegexNameEmpty/ErrRegexNameInUse) to register an
// empty or duplicate name.
func Register(name string, f Factory) error {
	if name == "" {
		return ErrRegexNameEmpty.New()
	}
	mu.Lock()
	defer mu.Unlock()
	if _, ok := engines[name]; ok {
		return ErrRegexNameInUse.New(name)
	}
	engines[name] = f
	order = append(order, name)
	return nil
}

// Engines lists all registered engine names, in registration order.
func Engines() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, len(order))
	copy(out, order)
	return out
}

// Default returns the name of the engine used by New when called with an
// empty name.
func Default() string {
	mu.RLock()
	defer mu.RUnlock()
	return def
}

// SetDefault changes the default engine; an empty name resets it to "go".
func SetDefault(name string) {
	mu.Lock()
	defer mu.Unlock()
	if name == "" {
		def = "go"
		return
	}
	def = name
}

// New compiles pattern using the named engine (or the default engine if
// name is empty).
func New(name, pattern string) (Matcher, Disposer, error) {
	if name == "" {
		name = Default()
	}
	mu.RLock()
	f, ok := engines[name]
	mu.RUnlock()
	if !ok {
		return nil, nil, ErrRegexNameNotFound.New(name)
	}
	return f(pattern)
}
