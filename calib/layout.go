package calib

import (
	"fmt"
	"sort"

	"github.com/roboteseo/rodvision/tags"
)

// Layout describes the competition table in millimetres.  X runs along the
// table width and Y along its length, with the origin at one corner.
type Layout struct {
	// Width of the table along X
	Width float64
	// Length of the table along Y
	Length float64
	// Fixed maps each reference tag id to the table position of its centre
	Fixed map[int]tags.Point
}

// DefaultLayout returns the Eurobot 2026 table with its four reference tags
func DefaultLayout() Layout {
	return Layout{
		Width:  2000,
		Length: 3000,
		Fixed: map[int]tags.Point{
			20: {X: 600, Y: 600},
			21: {X: 600, Y: 2400},
			22: {X: 1400, Y: 600},
			23: {X: 1400, Y: 2400},
		},
	}
}

// Validate checks the table has a positive size and exactly four reference
// tags that lie on it
func (l Layout) Validate() error {

	if l.Width <= 0 || l.Length <= 0 {
		return fmt.Errorf("%w: table size %.0fx%.0f", ErrInvalidLayout, l.Width, l.Length)
	}

	if len(l.Fixed) != 4 {
		return fmt.Errorf("%w: need 4 reference tags, got %d", ErrInvalidLayout, len(l.Fixed))
	}

	for id, p := range l.Fixed {
		if !tags.IsFixed(id) {
			return fmt.Errorf("%w: tag %d is not a reference id", ErrInvalidLayout, id)
		}

		if p.X < 0 || p.X > l.Width || p.Y < 0 || p.Y > l.Length {
			return fmt.Errorf("%w: tag %d at %.0f,%.0f is off the table", ErrInvalidLayout, id, p.X, p.Y)
		}
	}

	return nil
}

// Corners returns the table outline in order (0,0), (W,0), (W,L), (0,L)
func (l Layout) Corners() [4]tags.Point {
	return [4]tags.Point{
		{X: 0, Y: 0},
		{X: l.Width, Y: 0},
		{X: l.Width, Y: l.Length},
		{X: 0, Y: l.Length},
	}
}

// FixedIDs returns the reference tag ids in ascending order
func (l Layout) FixedIDs() []int {

	ids := make([]int, 0, len(l.Fixed))

	for id := range l.Fixed {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	return ids
}

// Contains reports whether a table point lies within the table outline
func (l Layout) Contains(p tags.Point) bool {
	return p.X >= 0 && p.X <= l.Width && p.Y >= 0 && p.Y <= l.Length
}
