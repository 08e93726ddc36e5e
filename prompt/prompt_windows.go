// Copyright (c) 2020-2021 cions
// Licensed under the MIT License. See LICENSE for details

//go:build windows
// +build windows

package prompt

import (
	"os"

	"golang.org/x/term"
)

// realTTY satisfies the tty interface over the separate console input
// and output handles Windows exposes.
type realTTY struct {
	conin, conout *os.File
}

func newTTY() (tty, error) {
	conin, err := os.OpenFile("CONIN$", os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	conout, err := os.OpenFile("CONOUT$", os.O_RDWR, 0)
	if err != nil {
		conin.Close()
		return nil, err
	}
	return &realTTY{conin: conin, conout: conout}, nil
}

func (r *realTTY) Read(p []byte) (int, error)  { return r.conin.Read(p) }
func (r *realTTY) Write(p []byte) (int, error) { return r.conout.Write(p) }

func (r *realTTY) Close() error {
	err1 := r.conin.Close()
	err2 := r.conout.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func (r *realTTY) MakeRaw() (*term.State, error) {
	return term.MakeRaw(int(r.conin.Fd()))
}

func (r *realTTY) Restore(state *term.State) error {
	return term.Restore(int(r.conin.Fd()), state)
}
