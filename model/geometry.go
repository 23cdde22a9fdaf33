package model

import "math"

// BBox is an axis-aligned rectangle in page points (1/72 inch) with the
// origin at the top-left corner of the page. Degenerate boxes are legal
// and have zero area; callers that need x1 >= x0 and y1 >= y0 must check.
type BBox struct {
	X0 float64
	Y0 float64
	X1 float64
	Y1 float64
}

// NewBBox returns the box spanning the two corners.
func NewBBox(x0, y0, x1, y1 float64) BBox {
	return BBox{X0: x0, Y0: y0, X1: x1, Y1: y1}
}

func (b BBox) Width() float64  { return b.X1 - b.X0 }
func (b BBox) Height() float64 { return b.Y1 - b.Y0 }
func (b BBox) Area() float64   { return b.Width() * b.Height() }

// Center returns the midpoint of the box.
func (b BBox) Center() (float64, float64) {
	return (b.X0 + b.X1) / 2, (b.Y0 + b.Y1) / 2
}

// Valid reports whether the corners are ordered.
func (b BBox) Valid() bool {
	return b.X1 >= b.X0 && b.Y1 >= b.Y0
}

// IsZero reports whether all four coordinates are zero.
func (b BBox) IsZero() bool {
	return b == BBox{}
}

// Contains reports whether other lies entirely inside b. Edges are inclusive,
// so a box always contains itself.
func (b BBox) Contains(other BBox) bool {
	return b.X0 <= other.X0 && b.Y0 <= other.Y0 &&
		b.X1 >= other.X1 && b.Y1 >= other.Y1
}

// ContainsPoint reports whether (x, y) is inside b or on its edge.
func (b BBox) ContainsPoint(x, y float64) bool {
	return b.X0 <= x && x <= b.X1 && b.Y0 <= y && y <= b.Y1
}

// Overlaps reports whether the interiors of b and other intersect.
// A box with non-zero area overlaps itself.
func (b BBox) Overlaps(other BBox) bool {
	return b.X0 < other.X1 && b.X1 > other.X0 &&
		b.Y0 < other.Y1 && b.Y1 > other.Y0
}

// Intersection returns the overlapping region and false when there is none.
func (b BBox) Intersection(other BBox) (BBox, bool) {
	if !b.Overlaps(other) {
		return BBox{}, false
	}
	return BBox{
		X0: math.Max(b.X0, other.X0),
		Y0: math.Max(b.Y0, other.Y0),
		X1: math.Min(b.X1, other.X1),
		Y1: math.Min(b.Y1, other.Y1),
	}, true
}

// Union returns the smallest box containing both.
func (b BBox) Union(other BBox) BBox {
	return BBox{
		X0: math.Min(b.X0, other.X0),
		Y0: math.Min(b.Y0, other.Y0),
		X1: math.Max(b.X1, other.X1),
		Y1: math.Max(b.Y1, other.Y1),
	}
}

// UnionAll folds Union over boxes. It returns the zero box for an empty slice.
func UnionAll(boxes []BBox) BBox {
	if len(boxes) == 0 {
		return BBox{}
	}
	u := boxes[0]
	for _, b := range boxes[1:] {
		u = u.Union(b)
	}
	return u
}

// VerticalOverlap returns the overlap of the two Y ranges as a fraction of
// the shorter box's height, in [0, 1].
func (b BBox) VerticalOverlap(other BBox) float64 {
	return overlapRatio(b.Y0, b.Y1, other.Y0, other.Y1)
}

// HorizontalOverlap is VerticalOverlap along the X axis.
func (b BBox) HorizontalOverlap(other BBox) float64 {
	return overlapRatio(b.X0, b.X1, other.X0, other.X1)
}

func overlapRatio(a0, a1, b0, b1 float64) float64 {
	lo := math.Max(a0, b0)
	hi := math.Min(a1, b1)
	if hi <= lo {
		return 0
	}
	shortest := math.Min(a1-a0, b1-b0)
	if shortest <= 0 {
		return 0
	}
	return math.Min(1, (hi-lo)/shortest)
}

// Scale multiplies every coordinate by f.
func (b BBox) Scale(f float64) BBox {
	return BBox{X0: b.X0 * f, Y0: b.Y0 * f, X1: b.X1 * f, Y1: b.Y1 * f}
}
