// Copyright (c) 2020-2024 cions
// Licensed under the MIT License. See LICENSE for details

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/lumimaja/lumi3/engine"
)

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	parser.Name = "lumi3"
	parser.ShortDescription = "Lumimaja v3 encrypted password-safe engine"

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "lumi3: error: %v\n", err)

		var engErr *engine.Error
		if errors.As(err, &engErr) && (engErr.Kind == engine.WrongPassword || engErr.Kind == engine.CryptoError) {
			os.Exit(1)
		}
		os.Exit(2)
	}
}
