// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package main

import (
	"bufio"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"

	tcam "github.com/LUXERON/VXLAN-CONTROL-PLANE-SERVER-sub001"
)

// numNextHops for generated routes and bare prefix lines
const numNextHops = 16

// openRoutes returns a reader for a route file, decompressed by extension.
func openRoutes(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	switch filepath.Ext(path) {
	case ".gz":
		rgz, err := gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, errors.Wrapf(err, "gzip %s", path)
		}
		return readCloser{rgz, file}, nil
	case ".zst":
		rzst, err := zstd.NewReader(file)
		if err != nil {
			file.Close()
			return nil, errors.Wrapf(err, "zstd %s", path)
		}
		return readCloser{rzst.IOReadCloser(), file}, nil
	case ".lz4":
		return readCloser{io.NopCloser(lz4.NewReader(file)), file}, nil
	}
	return file, nil
}

type readCloser struct {
	io.ReadCloser
	file *os.File
}

func (rc readCloser) Close() error {
	rc.ReadCloser.Close()
	return rc.file.Close()
}

// loadRoutes reads one route per line, "cidr [next-hop [metric]]".
// Bare prefixes, as in full table dumps, get a synthetic next hop.
// Empty lines and lines starting with # are skipped.
func loadRoutes(path string) ([]tcam.RouteSpec, error) {
	rc, err := openRoutes(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var routes []tcam.RouteSpec
	scanner := bufio.NewScanner(rc)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !strings.ContainsAny(line, " \t") {
			line += fmt.Sprintf(" nh-%d", n%numNextHops)
		}

		rs, err := tcam.ParseRouteSpec(line)
		if err != nil {
			return nil, errors.Wrapf(err, "%s:%d", path, n)
		}
		routes = append(routes, rs)
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return routes, nil
}

// randomRoutes returns n distinct prefixes with lengths seen in the
// real world, /8 to /28, no multicast or reserved space.
func randomRoutes(prng *rand.Rand, n int) []tcam.RouteSpec {
	reserved := tcam.MustParsePrefix("224.0.0.0/3")

	set := make(map[tcam.Prefix]struct{}, n)
	routes := make([]tcam.RouteSpec, 0, n)

	for len(routes) < n {
		pfx := tcam.MustPrefix(prng.Uint32(), 8+prng.IntN(21))
		if pfx.Overlaps(reserved) {
			continue
		}
		if _, ok := set[pfx]; ok {
			continue
		}
		set[pfx] = struct{}{}

		routes = append(routes, tcam.RouteSpec{
			Prefix:  pfx,
			NextHop: fmt.Sprintf("nh-%d", prng.IntN(numNextHops)),
			Metric:  uint32(prng.IntN(1000)),
		})
	}
	return routes
}

// randomProbes returns n addresses, about half of them inside the routes.
func randomProbes(prng *rand.Rand, routes []tcam.RouteSpec, n int) []uint32 {
	probes := make([]uint32, n)
	for i := range probes {
		if len(routes) == 0 || prng.IntN(2) == 0 {
			probes[i] = prng.Uint32()
			continue
		}
		pfx := routes[prng.IntN(len(routes))].Prefix
		probes[i] = pfx.Addr | prng.Uint32()&^pfx.Mask()
	}
	return probes
}
