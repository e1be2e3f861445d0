// Package geo provides the distance and containment primitives used by zone
// consumers of the position stream.
package geo

import "math"

// EarthRadius is the Earth's radius in metres at latitude ~52°N.
const EarthRadius = 6373000.0

// Position is a WGS84 coordinate with an optional sighting time.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	TS  *int64  `json:"ts,omitempty"`
}

// Distance returns the great-circle distance in metres between p1 and p2.
func Distance(p1, p2 Position) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(p2.Lat - p1.Lat)
	dLng := toRad(p2.Lng - p1.Lng)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(p1.Lat))*math.Cos(toRad(p2.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadius * c
}

// InsideBox reports whether p lies strictly inside the box with south-west
// corner sw and north-east corner ne. Points on an edge are outside.
func InsideBox(p, sw, ne Position) bool {
	return sw.Lat < p.Lat && p.Lat < ne.Lat &&
		sw.Lng < p.Lng && p.Lng < ne.Lng
}

// Polygon is an immutable closed ring of positions.
type Polygon struct {
	pts    []Position
	sw, ne Position
}

// NewPolygon copies pts into a Polygon. A trailing vertex equal to the first
// is dropped since the ring is closed implicitly.
func NewPolygon(pts []Position) Polygon {
	n := len(pts)
	if n > 1 && pts[0].Lat == pts[n-1].Lat && pts[0].Lng == pts[n-1].Lng {
		n--
	}
	cp := make([]Position, n)
	copy(cp, pts[:n])
	poly := Polygon{pts: cp}
	poly.sw, poly.ne = box(cp)
	return poly
}

// Len returns the number of vertices.
func (p Polygon) Len() int { return len(p.pts) }

// At returns the i'th vertex.
func (p Polygon) At(i int) Position { return p.pts[i] }

// Box returns the south-west and north-east corners of the bounding box.
func (p Polygon) Box() (sw, ne Position) { return p.sw, p.ne }

func box(pts []Position) (sw, ne Position) {
	if len(pts) == 0 {
		return
	}
	sw = Position{Lat: pts[0].Lat, Lng: pts[0].Lng}
	ne = sw
	for _, v := range pts[1:] {
		sw.Lat = math.Min(sw.Lat, v.Lat)
		sw.Lng = math.Min(sw.Lng, v.Lng)
		ne.Lat = math.Max(ne.Lat, v.Lat)
		ne.Lng = math.Max(ne.Lng, v.Lng)
	}
	return sw, ne
}

// Inside reports whether p lies inside poly. A bounding box check runs first;
// then a ray is cast northwards from p and edge crossings are counted.
func Inside(p Position, poly Polygon) bool {
	if len(poly.pts) < 3 {
		return false
	}
	if !InsideBox(p, poly.sw, poly.ne) {
		return false
	}

	inside := false
	n := len(poly.pts)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := poly.pts[j], poly.pts[i]
		aLng, bLng := a.Lng, b.Lng
		// edge crosses the antimeridian: shift both ends onto p's side
		if math.Abs(aLng-bLng) > 180 {
			if p.Lng > 0 {
				if aLng < 0 {
					aLng += 360
				}
				if bLng < 0 {
					bLng += 360
				}
			} else {
				if aLng > 0 {
					aLng -= 360
				}
				if bLng > 0 {
					bLng -= 360
				}
			}
		}
		if (aLng > p.Lng) == (bLng > p.Lng) {
			continue
		}
		lat := a.Lat + (p.Lng-aLng)*(b.Lat-a.Lat)/(bLng-aLng)
		if lat > p.Lat {
			inside = !inside
		}
	}
	return inside
}
