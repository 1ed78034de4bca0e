// Package marker describes fiducial markers found in a camera frame.
package marker

import (
	"image"
	"math"
	"sort"
)

// Point is a corner position in frame pixels.
type Point struct {
	X, Y float32
}

// Marker is one detected fiducial marker
type Marker struct {
	ID      int     // Dictionary index of the marker
	Corners []Point // Corner polygon, clockwise from the marker's top-left
}

// Center returns the mean of the corners
func (m Marker) Center() (x, y float64) {
	if len(m.Corners) == 0 {
		return 0, 0
	}
	for _, c := range m.Corners {
		x += float64(c.X)
		y += float64(c.Y)
	}
	n := float64(len(m.Corners))
	return x / n, y / n
}

// Area returns the polygon area in square pixels (shoelace formula)
func (m Marker) Area() float64 {
	n := len(m.Corners)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		a, b := m.Corners[i], m.Corners[(i+1)%n]
		sum += float64(a.X)*float64(b.Y) - float64(b.X)*float64(a.Y)
	}
	return math.Abs(sum) / 2
}

// Polygon returns the corners rounded to integer pixel positions for drawing
func (m Marker) Polygon() []image.Point {
	pts := make([]image.Point, len(m.Corners))
	for i, c := range m.Corners {
		pts[i] = image.Pt(int(math.Round(float64(c.X))), int(math.Round(float64(c.Y))))
	}
	return pts
}

// IDs returns the marker IDs in ascending order, one per marker
func IDs(markers []Marker) []int {
	if len(markers) == 0 {
		return nil
	}
	ids := make([]int, len(markers))
	for i, m := range markers {
		ids[i] = m.ID
	}
	sort.Ints(ids)
	return ids
}

// Largest returns the marker covering the most pixels, or nil if none
func Largest(markers []Marker) *Marker {
	var best *Marker
	bestArea := -1.0
	for i := range markers {
		if a := markers[i].Area(); a > bestArea {
			bestArea = a
			best = &markers[i]
		}
	}
	return best
}
