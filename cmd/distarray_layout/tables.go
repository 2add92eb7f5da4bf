// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/distarray/pkg/core/dimmap"
	"github.com/gomlx/distarray/pkg/core/disterrors"
	"github.com/gomlx/distarray/pkg/core/distribution"
	"github.com/gomlx/distarray/pkg/core/gridshape"
	"github.com/gomlx/gopjrt/dtypes"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	emptyRowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"}).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 0, 0, 0)
)

// newLayoutTable returns a table with alternating row styles. Rows listed in empty are highlighted.
func newLayoutTable(empty map[int]bool, alignments ...lipgloss.Position) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row < 0 {
				return headerRowStyle
			}
			switch {
			case empty[row]:
				s = emptyRowStyle
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			}
			return s.Align(alignment)
		})
}

// reportLayout prints one row per rank (or only onlyRank, if >= 0) with its part of the array.
func reportLayout(dist *distribution.Distribution, dtype dtypes.DType, onlyRank int) error {
	elemSize := uint64(dtype.Memory())
	empty := make(map[int]bool)
	table := newLayoutTable(empty, lipgloss.Right, lipgloss.Right, lipgloss.Center, lipgloss.Center,
		lipgloss.Left, lipgloss.Right, lipgloss.Right)
	table.Headers("Rank", "Process", "Grid", "Local Shape", "Global Indices", "Elements", "Memory")

	var row int
	for rank, descs := range dist.DimDataPerRank() {
		if onlyRank >= 0 && rank != onlyRank {
			continue
		}
		localShape := distribution.LocalShapeOf(descs)
		numElements := gridshape.Product(localShape)
		axes := make([]string, len(descs))
		for axis, desc := range descs {
			axes[axis] = desc.String()
		}
		coords, err := dist.GridCoords(rank)
		if err != nil {
			return err
		}
		processID, err := dist.Target(rank)
		if err != nil {
			return err
		}
		empty[row] = numElements == 0
		table.Row(
			fmt.Sprint(rank),
			fmt.Sprint(processID),
			fmt.Sprint(coords),
			fmt.Sprint(localShape),
			strings.Join(axes, "\n"),
			humanize.Comma(int64(numElements)),
			humanize.Bytes(uint64(numElements)*elemSize),
		)
		row++
	}
	if row == 0 {
		return disterrors.IndexOutOfRangef("rank %d not in the %d ranks of %s", onlyRank, dist.NumRanks(), dist)
	}
	fmt.Println(table)
	if err := reportAxes(dist); err != nil {
		return err
	}
	fmt.Printf("%s elements (%s of %s) over %d of %d processes, process grid %v\n",
		humanize.Comma(int64(dist.Size())), humanize.Bytes(uint64(dist.Size())*elemSize), dtype,
		dist.NumRanks(), dist.NumProcesses(), dist.GridShape())
	return nil
}

// reportAxes prints one row per axis of the array, with the local sizes along each coordinate of its grid axis.
func reportAxes(dist *distribution.Distribution) error {
	if dist.Rank() == 0 {
		return nil
	}
	empty := make(map[int]bool)
	table := newLayoutTable(empty, lipgloss.Right, lipgloss.Left, lipgloss.Right, lipgloss.Right, lipgloss.Left)
	table.Headers("Axis", "Distribution", "Size", "Grid Size", "Local Sizes")
	for axis := range dist.Rank() {
		m, err := dist.Map(axis)
		if err != nil {
			return err
		}
		sizes := dimmap.LocalSizes(m)
		empty[axis] = slices.Contains(sizes, 0)
		table.Row(
			fmt.Sprint(axis),
			m.Kind().String(),
			humanize.Comma(int64(m.Size())),
			fmt.Sprint(m.GridSize()),
			fmt.Sprint(sizes),
		)
	}
	fmt.Println(table)
	return nil
}
