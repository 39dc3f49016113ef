// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// matcher applies the name-matching policy: shell globs, exclude wins
// over include, an empty include list matches everything not excluded.
// It counts per-pattern hits so a run can report includes that matched
// nothing.
type matcher struct {
	include []string
	exclude []string
	fold    bool
	hits    []int
}

func newMatcher(o *Options) (*matcher, error) {
	m := &matcher{
		include: o.Include,
		exclude: o.Exclude,
		fold:    o.CaseFold,
		hits:    make([]int, len(o.Include)),
	}
	for _, p := range append(append([]string{}, o.Include...), o.Exclude...) {
		if !doublestar.ValidatePattern(m.norm(p)) {
			return nil, fmt.Errorf("%w: bad pattern %q", ErrUsage, p)
		}
	}
	return m, nil
}

func (m *matcher) norm(s string) string {
	if m.fold {
		return strings.ToLower(s)
	}
	return s
}

func (m *matcher) globMatch(pattern, name string) bool {
	ok, err := doublestar.Match(m.norm(pattern), m.norm(name))
	return err == nil && ok
}

// match reports whether the policy selects name.
func (m *matcher) match(name string) bool {
	for _, p := range m.exclude {
		if m.globMatch(p, name) {
			return false
		}
	}
	if len(m.include) == 0 {
		return true
	}
	selected := false
	for i, p := range m.include {
		if m.globMatch(p, name) {
			m.hits[i]++
			selected = true
		}
	}
	return selected
}

// misses lists include patterns that never matched during the run.
func (m *matcher) misses() []string {
	var missed []string
	for i, p := range m.include {
		if m.hits[i] == 0 {
			missed = append(missed, p)
		}
	}
	return missed
}

// reportMisses warns about dead include patterns and classifies the run
// as no-files-matched when any exist.
func (m *matcher) reportMisses(o *Options) error {
	missed := m.misses()
	for _, p := range missed {
		o.warn("caution: filename not matched:  %s\n", p)
		o.sink().Record(Notice{Err: ErrNoFilesMatched, Name: p, Detail: "pattern matched no entry"})
	}
	if len(missed) > 0 {
		return ErrNoFilesMatched
	}
	return nil
}
