// Copyright (c) 2020-2024 cions
// Licensed under the MIT License. See LICENSE for details

// Package trace is a minimal stderr logger gated by LUMI3_TRACE=1, used
// for the occasional diagnostic that isn't worth surfacing as an error
// (a kept temp file after a failed rename) — the same
// role PWSfileV3.cpp's scattered fprintf(stderr, ...) trace calls play.
// Never pass passphrase bytes, derived keys, salts, or plaintext here.
package trace

import (
	"log"
	"os"
)

var logger = log.New(os.Stderr, "lumi3: trace: ", log.LstdFlags)

var enabled = os.Getenv("LUMI3_TRACE") == "1"

// Printf writes a trace line if LUMI3_TRACE=1 is set in the environment;
// otherwise it is a no-op.
func Printf(format string, args ...interface{}) {
	if !enabled {
		return
	}
	logger.Printf(format, args...)
}
