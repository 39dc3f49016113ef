// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/zipkit/zipkit"
)

// pageLines is the classic screenful between prompts.
const pageLines = 22

// Pager adapts paged output to the engine's line closure. Every
// screenful it writes --More-- to the prompt writer and reads one byte
// from In; q or Q stops the listing. A nil In never prompts.
type Pager struct {
	Out    io.Writer
	Prompt io.Writer
	In     io.Reader

	lines int
}

// StdPager pages to stdout with the prompt on stderr and keys from
// stdin.
func StdPager() *Pager {
	return &Pager{Out: os.Stdout, Prompt: os.Stderr, In: os.Stdin}
}

// Line prints one listing line, pausing at each screenful.
func (p *Pager) Line(s string) error {
	if _, err := fmt.Fprintln(p.Out, s); err != nil {
		return err
	}
	p.lines++
	if p.In == nil || p.lines%pageLines != 0 {
		return nil
	}

	fmt.Fprint(p.Prompt, "--More--")
	var b [1]byte
	n, err := p.In.Read(b[:])
	fmt.Fprint(p.Prompt, "\r        \r")
	if err != nil {
		p.In = nil
		return nil
	}
	if n == 1 && (b[0] == 'q' || b[0] == 'Q') {
		return zipkit.ErrStopOutput
	}
	return nil
}

// Interactive reports whether stdout is a terminal, which gates the
// pager default.
func Interactive() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
