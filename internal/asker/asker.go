// Copyright (c) 2020-2024 cions
// Licensed under the MIT License. See LICENSE for details

// Package asker implements the Asker collaborator: a yes/no confirmation
// prompt read as a single raw keypress, e.g. before overwriting an
// existing database file.
package asker

import (
	"fmt"

	"github.com/mattn/go-tty"
)

// Confirm prints prompt followed by " [y/N] ", reads a single keypress in
// raw mode, and reports whether it was 'y' or 'Y'. Any other key,
// including Enter, is treated as "no". An I/O error reading the keypress
// is also treated as "no".
func Confirm(prompt string) bool {
	t, err := tty.Open()
	if err != nil {
		return false
	}
	defer t.Close()

	fmt.Fprintf(t.Output(), "%s [y/N] ", prompt)
	r, err := t.ReadRune()
	fmt.Fprintln(t.Output())
	if err != nil {
		return false
	}
	return r == 'y' || r == 'Y'
}
