// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// tcambench loads a route table, random or from a file, runs a lookup
// workload against it and prints the table statistics.
package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	tcam "github.com/LUXERON/VXLAN-CONTROL-PLANE-SERVER-sub001"
)

type options struct {
	configPath string
	routesFile string
	routes     int
	lookups    int
	batch      int
	seed       uint64
	verbose    bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var opts options

	flagSet := pflag.NewFlagSet("tcambench", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", "", "YAML config file, defaults are used if empty")
	flagSet.StringVar(&opts.routesFile, "routes-file", "", "route file, 'cidr [next-hop [metric]]' per line, .gz .zst .lz4 are decompressed")
	flagSet.IntVar(&opts.routes, "routes", 100_000, "number of random routes, ignored with --routes-file")
	flagSet.IntVar(&opts.lookups, "lookups", 10_000_000, "number of lookups")
	flagSet.IntVar(&opts.batch, "batch", 0, "batch size, 0 for single lookups")
	flagSet.Uint64Var(&opts.seed, "seed", 42, "seed for routes and probes")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "development logging at debug level")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	logger, err := newLogger(opts.verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	return bench(logger, opts)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func bench(logger *zap.Logger, opts options) error {
	cfg := tcam.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = tcam.LoadConfig(opts.configPath); err != nil {
			return err
		}
	}

	tbl, err := tcam.New(cfg, tcam.WithLogger(logger))
	if err != nil {
		return err
	}

	prng := rand.New(rand.NewPCG(opts.seed, opts.seed))

	var routes []tcam.RouteSpec
	if opts.routesFile != "" {
		if routes, err = loadRoutes(opts.routesFile); err != nil {
			return err
		}
	} else {
		routes = randomRoutes(prng, opts.routes)
	}

	start := time.Now()
	if err := tbl.InsertBatch(routes); err != nil {
		return err
	}
	logger.Info("routes loaded",
		zap.String("routes", humanize.Comma(int64(tbl.Len()))),
		zap.Duration("took", time.Since(start)),
	)

	probes := randomProbes(prng, routes, 1<<16)
	tbl.ResetStats()

	start = time.Now()
	matched := lookups(tbl, probes, opts.lookups, opts.batch)
	elapsed := time.Since(start)

	fmt.Printf("%s lookups in %v, %s matched, %v/lookup\n\n",
		humanize.Comma(int64(opts.lookups)),
		elapsed.Round(time.Millisecond),
		humanize.Comma(int64(matched)),
		elapsed/time.Duration(max(opts.lookups, 1)),
	)
	fmt.Println(tbl.Stats())
	return nil
}

// lookups runs n lookups over the probes, single or batched.
func lookups(tbl *tcam.Table, probes []uint32, n, batch int) (matched int) {
	mask := len(probes) - 1

	if batch <= 0 {
		for i := range n {
			if _, ok := tbl.Lookup(probes[i&mask]); ok {
				matched++
			}
		}
		return matched
	}

	addrs := make([]uint32, batch)
	for i := 0; i < n; i += batch {
		k := min(batch, n-i)
		for j := range k {
			addrs[j] = probes[(i+j)&mask]
		}
		for _, res := range tbl.LookupBatch(addrs[:k]) {
			if res.OK {
				matched++
			}
		}
	}
	return matched
}
