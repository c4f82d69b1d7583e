// Copyright 2022 Sogang University
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main implements the heat equation driver: the one representative
// CLI surface that exercises construction, balancing, and grid-hierarchy
// generation end to end on a single process (spec.md §6). It does not
// assemble or solve the heat equation itself; that belongs to the FEM/MG
// layer this module does not implement.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/dendro-kt/octree/comm"
	"github.com/dendro-kt/octree/internal/cell"
	"github.com/dendro-kt/octree/internal/hilbert"
	"github.com/dendro-kt/octree/octree"
	"github.com/dendro-kt/octree/partition"
	"github.com/golang/glog"
)

// dim is fixed at 3 for the heat equation driver: the one representative
// scenario spec.md §6 names does not vary it.
const dim = 3

// seedLevel caps how deep the driver's synthetic input grid goes, so a
// single-process demo run stays within a few seconds regardless of maxDepth.
const seedLevel = 4

func main() {
	flag.Parse()
	if err := run(flag.Args()); err != nil {
		glog.Errorf("heat equation driver: %v", err)
		os.Exit(1)
	}
}

type config struct {
	maxDepth     int
	waveletTol   float64
	partitionTol float64
	eleOrder     int
}

func parseArgs(args []string) (config, error) {
	if len(args) != 4 {
		return config{}, fmt.Errorf("usage: %s maxDepth wavelet_tol partition_tol eleOrder", os.Args[0])
	}

	maxDepth, err := strconv.Atoi(args[0])
	if err != nil {
		return config{}, fmt.Errorf("maxDepth: %w", err)
	}
	if maxDepth < 1 || 31 < maxDepth {
		return config{}, fmt.Errorf("maxDepth %d outside [1,31]", maxDepth)
	}

	waveletTol, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return config{}, fmt.Errorf("wavelet_tol: %w", err)
	}
	if waveletTol <= 0 {
		return config{}, errors.New("wavelet_tol must be positive")
	}

	partitionTol, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return config{}, fmt.Errorf("partition_tol: %w", err)
	}
	if partitionTol < 0 {
		return config{}, errors.New("partition_tol must be non-negative")
	}

	eleOrder, err := strconv.Atoi(args[3])
	if err != nil {
		return config{}, fmt.Errorf("eleOrder: %w", err)
	}
	if eleOrder < 1 {
		return config{}, errors.New("eleOrder must be positive")
	}

	return config{maxDepth: maxDepth, waveletTol: waveletTol, partitionTol: partitionTol, eleOrder: eleOrder}, nil
}

func run(args []string) error {
	cfg, err := parseArgs(args)
	if err != nil {
		return err
	}

	params := cell.Params{Dim: dim, MaxDepth: cfg.maxDepth}
	table, err := hilbert.Get(params.Dim)
	if err != nil {
		return fmt.Errorf("building rotation table: %w", err)
	}
	defer hilbert.Destroy()

	// Single-process demo: production deployments plug in a Comm backed by
	// a real multi-process transport instead.
	c := comm.NewLocal(1)[0]
	ctx := context.Background()

	seed := uniformGrid(params, level(cfg.maxDepth, seedLevel))

	// maxPtsPerRegion stands in for a wavelet-coefficient threshold: the
	// refinement criterion itself belongs to the FEM/MG layer this module
	// does not implement, so a tighter wavelet_tol is only approximated
	// here as a smaller region capacity.
	maxPtsPerRegion := int(1 / cfg.waveletTol)
	if maxPtsPerRegion < 1 {
		maxPtsPerRegion = 1
	}

	tree, err := partition.ConstructTree(ctx, c, seed, maxPtsPerRegion, cfg.partitionTol, params, table)
	if err != nil {
		return fmt.Errorf("constructing tree: %w", err)
	}

	balanced, err := partition.Balance(ctx, c, tree, cfg.partitionTol, params, table)
	if err != nil {
		return fmt.Errorf("balancing tree: %w", err)
	}

	dt := octree.New(params, table, balanced)
	if err := dt.Filter(octree.DefaultCellDecider(params)); err != nil {
		return fmt.Errorf("filtering tree: %w", err)
	}

	if err := dt.GenerateGridHierarchy(ctx, c, octree.HierarchyStop{UntilLevel: 0}, cfg.partitionTol); err != nil {
		return fmt.Errorf("generating grid hierarchy: %w", err)
	}

	s0, _ := dt.Stratum(0)
	glog.Infof("heat equation driver: maxDepth=%d eleOrder=%d strata=%d leaves=%d", cfg.maxDepth, cfg.eleOrder, dt.NumStrata(), len(s0.Leaves()))
	return nil
}

func level(maxDepth, cap int) int {
	if maxDepth < cap {
		return maxDepth
	}
	return cap
}

// uniformGrid returns every leaf of the uniform grid at the given level,
// the synthetic input this driver constructs a tree and hierarchy from in
// lieu of reading a real point cloud off disk.
func uniformGrid(params cell.Params, level int) []cell.Cell {
	var out []cell.Cell
	var walk func(c cell.Cell)
	walk = func(c cell.Cell) {
		if c.Level() == level {
			out = append(out, c)
			return
		}
		for child := 0; child < params.NumChildren(); child++ {
			walk(c.ChildMorton(params, child))
		}
	}
	walk(cell.Root(params))
	return out
}
