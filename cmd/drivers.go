// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Metrolab Instruments

package cmd

import (
	"fmt"
	"sort"

	"github.com/Metrolab/sigline/pkg/agdmm"
	"github.com/Metrolab/sigline/pkg/gmcmh"
	"github.com/Metrolab/sigline/pkg/sigline"
	"github.com/Metrolab/sigline/pkg/testo"
	"github.com/spf13/cobra"
)

// drivers maps --driver names to profile constructors. The profile is
// built lazily so listing drivers compiles no regex tables.
var drivers = map[string]func() *sigline.Profile{
	"agdmm-u123x": agdmm.ProfileU123x,
	"agdmm-u125x": agdmm.ProfileU125x,
	"testo-x35":   testo.NewProfile,
}

func init() {
	// One driver entry per METRAHit model; they share the engine but
	// differ in framing lengths and decode tables.
	for _, model := range []gmcmh.Model{
		gmcmh.Model12S, gmcmh.Model13S14A, gmcmh.Model14S,
		gmcmh.Model15S, gmcmh.Model16S, gmcmh.Model16I, gmcmh.Model18S,
		gmcmh.Model22SM, gmcmh.Model23S, gmcmh.Model24S,
		gmcmh.Model25SM, gmcmh.Model26S, gmcmh.Model28S, gmcmh.Model29S,
	} {
		m := model
		drivers[gmcmh.NewProfile(m).Name] = func() *sigline.Profile {
			return gmcmh.NewProfile(m)
		}
	}

	rootCmd.AddCommand(driversCmd)
}

// lookupDriver resolves a --driver flag value.
func lookupDriver(name string) (*sigline.Profile, error) {
	ctor, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("unknown driver %q (see 'sigline drivers')", name)
	}
	return ctor(), nil
}

var driversCmd = &cobra.Command{
	Use:   "drivers",
	Short: "List available instrument drivers",
	Run: func(cmd *cobra.Command, args []string) {
		names := make([]string, 0, len(drivers))
		for name := range drivers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Println(name)
		}
	},
}
