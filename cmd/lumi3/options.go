// Copyright (c) 2020-2024 cions
// Licensed under the MIT License. See LICENSE for details

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lumimaja/lumi3/engine"
	"github.com/lumimaja/lumi3/internal/asker"
	"github.com/lumimaja/lumi3/internal/rng"
	"github.com/lumimaja/lumi3/policy"
	"github.com/lumimaja/lumi3/pool"
	"github.com/lumimaja/lumi3/prompt"
	"github.com/lumimaja/lumi3/sig"
)

// Options is the top-level command set, mirroring the engine's public
// surface: open/new/genpass/sig.
type Options struct {
	Open    OpenCmd    `command:"open" description:"Open a database and list its entries"`
	New     NewCmd     `command:"new" description:"Create a new empty database"`
	Genpass GenpassCmd `command:"genpass" description:"Generate a password from a policy"`
	Sig     SigCmd     `command:"sig" description:"Print a file's identity signature"`
}

// OpenCmd opens an existing database read-only and lists its entries.
type OpenCmd struct {
	Positional struct {
		Path string `positional-arg-name:"path" description:"database file"`
	} `positional-args:"yes" required:"yes"`
}

func (c *OpenCmd) Execute(args []string) error {
	secret, err := prompt.ReadPassphrase(context.Background(), "Passphrase")
	if err != nil {
		return err
	}
	defer secret.Release()

	eng := engine.New(rng.New())
	if err := eng.OpenRead(c.Positional.Path, secret.Bytes()); err != nil {
		return err
	}
	defer eng.Close()

	hdr := eng.Header()
	fmt.Printf("database: %s\n", hdr.DBName)
	fmt.Printf("uuid: %s\n", hdr.UUID)
	fmt.Printf("last saved: %s by %s@%s (%s)\n",
		time.Unix(hdr.LastSaveTime, 0).Format(time.RFC3339), hdr.LastSaveUser, hdr.LastSaveHost, hdr.LastSaveApp)

	n := 0
	for {
		e, err := eng.ReadRecord()
		if err != nil {
			return err
		}
		if e == nil {
			break
		}
		n++
		fmt.Printf("entry %d: %d field(s)\n", n, len(e.Fields))
	}
	fmt.Printf("%d entries\n", n)
	return nil
}

// NewCmd creates a fresh, empty database.
type NewCmd struct {
	Name  string `long:"name" description:"database name"`
	Desc  string `long:"description" description:"database description"`
	Force bool   `short:"f" long:"force" description:"overwrite an existing file without asking"`

	Positional struct {
		Path string `positional-arg-name:"path" description:"database file"`
	} `positional-args:"yes" required:"yes"`
}

func (c *NewCmd) Execute(args []string) error {
	if _, err := os.Stat(c.Positional.Path); err == nil && !c.Force {
		if !asker.Confirm(fmt.Sprintf("%s already exists. Overwrite?", c.Positional.Path)) {
			return errors.New("aborted")
		}
	}

	secret, err := prompt.ReadPassphrase(context.Background(), "New Passphrase")
	if err != nil {
		return err
	}
	defer secret.Release()

	eng := engine.New(rng.New())
	if err := eng.OpenWrite(c.Positional.Path, secret.Bytes(), engine.DefaultParams()); err != nil {
		return err
	}

	hdr := eng.Header()
	hdr.DBName = c.Name
	hdr.DBDesc = c.Desc
	hdr.LastSaveTime = time.Now().Unix()
	hdr.LastSaveApp = "lumi3"
	hdr.LastSaveUser = os.Getenv("USER")
	if host, err := os.Hostname(); err == nil {
		hdr.LastSaveHost = host
	}
	eng.SetHeader(hdr)

	return eng.Close()
}

// GenpassCmd generates one or more passwords from a policy, either given
// as a 7-hex-char string or built from individual flags.
type GenpassCmd struct {
	Policy        string `long:"policy" description:"7-hex-char policy string, overrides the other flags"`
	Length        uint16 `long:"length" default:"16" description:"password length"`
	Lower         bool   `long:"lower" description:"include lowercase letters"`
	Upper         bool   `long:"upper" description:"include uppercase letters"`
	Digits        bool   `long:"digits" description:"include digits"`
	Symbols       bool   `long:"symbols" description:"include symbols"`
	Pronounceable bool   `long:"pronounceable" description:"generate a pronounceable password"`
	Count         int    `long:"count" default:"1" description:"number of passwords to generate"`
}

func (c *GenpassCmd) Execute(args []string) error {
	var p policy.Policy
	if c.Policy != "" {
		p = policy.FromString(c.Policy)
		if p == policy.Empty {
			return errors.New("invalid policy string")
		}
	} else {
		var flags uint16
		if c.Lower {
			flags |= policy.UseLower
		}
		if c.Upper {
			flags |= policy.UseUpper
		}
		if c.Digits {
			flags |= policy.UseDigit
		}
		if c.Symbols {
			flags |= policy.UseSymbol
		}
		if c.Pronounceable {
			flags |= policy.Pronounceable
		}
		if flags == 0 {
			flags = policy.UseLower | policy.UseUpper | policy.UseDigit
		}
		p = policy.Policy{Flags: flags, Length: c.Length}
	}

	cp, err := pool.New(p, "", rng.New())
	if err != nil {
		return err
	}
	if c.Count < 1 {
		c.Count = 1
	}
	for i := 0; i < c.Count; i++ {
		pw := cp.MakePassword()
		fmt.Printf("%s (%s)\n", pw, pool.Check(pw))
	}
	return nil
}

// SigCmd prints the identity signature of a file.
type SigCmd struct {
	Positional struct {
		Path string `positional-arg-name:"path" description:"database file"`
	} `positional-args:"yes" required:"yes"`
}

func (c *SigCmd) Execute(args []string) error {
	s, err := sig.Of(c.Positional.Path)
	if err != nil {
		return err
	}
	fmt.Printf("%x\n", s[:])
	return nil
}
