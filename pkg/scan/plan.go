// Serpentine scan plan
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package scan

// Spacing is the grid pitch in cm, matched to the probe aperture.
const Spacing = 0.39

// Point is a carriage target in cm.
type Point struct {
	X float64
	Y float64
}

// Plan is a lazy, finite, non-restartable sequence of scan targets
// over an N x N grid in boustrophedon order: even rows traverse x
// forward, odd rows reverse. The first target sits 1.5 grid pitches
// inside the start corner. Every target carries an implicit
// measurement marker; no positions are skipped.
type Plan struct {
	size   int
	xStart float64
	yStart float64
	next   int
}

// NewPlan creates a plan for an N x N grid anchored at the start
// offsets.
func NewPlan(size int, xStart, yStart float64) *Plan {
	return &Plan{size: size, xStart: xStart, yStart: yStart}
}

// Total returns the number of targets, always size squared.
func (p *Plan) Total() int {
	return p.size * p.size
}

// Size returns the grid edge length.
func (p *Plan) Size() int {
	return p.size
}

// Next returns the following target. The second return is false once
// the plan is exhausted; the sequence does not restart.
func (p *Plan) Next() (Point, bool) {
	if p.next >= p.Total() {
		return Point{}, false
	}
	row := p.next / p.size
	col := p.next % p.size
	if row%2 == 1 {
		col = p.size - 1 - col
	}
	p.next++

	return Point{
		X: p.xStart + 1.5*Spacing + float64(col)*Spacing,
		Y: p.yStart + 1.5*Spacing + float64(row)*Spacing,
	}, true
}

// Remaining returns how many targets have not been produced yet.
func (p *Plan) Remaining() int {
	return p.Total() - p.next
}
