// Copyright (c) 2020-2021 cions
// Licensed under the MIT License. See LICENSE for details

//go:build aix || darwin || dragonfly || freebsd || illumos || linux || netbsd || openbsd || solaris
// +build aix darwin dragonfly freebsd illumos linux netbsd openbsd solaris

package prompt

import (
	"os"

	"golang.org/x/term"
)

// realTTY satisfies the tty interface by opening the controlling
// terminal directly, bypassing stdin/stdout so prompting still works
// when they are redirected.
type realTTY struct {
	f *os.File
}

func newTTY() (tty, error) {
	f, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &realTTY{f: f}, nil
}

func (r *realTTY) Read(p []byte) (int, error)  { return r.f.Read(p) }
func (r *realTTY) Write(p []byte) (int, error) { return r.f.Write(p) }
func (r *realTTY) Close() error                { return r.f.Close() }

func (r *realTTY) MakeRaw() (*term.State, error) {
	return term.MakeRaw(int(r.f.Fd()))
}

func (r *realTTY) Restore(state *term.State) error {
	return term.Restore(int(r.f.Fd()), state)
}
