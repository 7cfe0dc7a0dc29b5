// Copyright 2026 Parsec DB, Inc.
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

package qproc

import (
	"math"

	"github.com/parsecdb/parsec/libraries/czarcore/css"
	"github.com/parsecdb/parsec/libraries/czarcore/query"
)

// Grid maps sky coordinates to chunk ids. The sphere is divided into
// latitude stripes of 180/nStripes degrees, each stripe into 2*nStripes
// longitude cells; chunkId = stripe*2*nStripes + lonCell. Sub-chunk ids
// within a chunk run 0..nSubStripes-1.
type Grid struct {
	stripes    int
	subStripes int
	overlap    float64
}

func NewGrid(s css.Striping) *Grid {
	stripes := s.Stripes
	if stripes < 1 {
		stripes = 1
	}
	subStripes := s.SubStripes
	if subStripes < 1 {
		subStripes = 1
	}
	return &Grid{stripes: stripes, subStripes: subStripes, overlap: s.Overlap}
}

func (g *Grid) chunksPerStripe() int { return 2 * g.stripes }

// SubChunks returns the sub-chunk ids of any chunk.
func (g *Grid) SubChunks() []int {
	ids := make([]int, g.subStripes)
	for i := range ids {
		ids[i] = i
	}
	return ids
}

// IntersectingChunks returns the chunk ids whose cells intersect the
// bounding box of the restrictor, widened by the partitioning overlap.
func (g *Grid) IntersectingChunks(r *query.AreaRestrictor) []int {
	lonMin, lonMax, latMin, latMax, ok := boundingBox(r)
	if !ok {
		return nil
	}
	lonMin -= g.overlap
	latMin -= g.overlap
	lonMax += g.overlap
	latMax += g.overlap

	latMin = clamp(latMin, -90, 90)
	latMax = clamp(latMax, -90, 90)

	stripeHeight := 180.0 / float64(g.stripes)
	lonWidth := 360.0 / float64(g.chunksPerStripe())

	sMin := int(math.Floor((latMin + 90) / stripeHeight))
	sMax := int(math.Floor((latMax + 90) / stripeHeight))
	if sMax >= g.stripes {
		sMax = g.stripes - 1
	}

	cMin := int(math.Floor(normalizeLon(lonMin) / lonWidth))
	cMax := int(math.Floor(normalizeLon(lonMax) / lonWidth))

	var lonCells []int
	if lonMax-lonMin >= 360 {
		for c := 0; c < g.chunksPerStripe(); c++ {
			lonCells = append(lonCells, c)
		}
	} else if cMin <= cMax {
		for c := cMin; c <= cMax; c++ {
			lonCells = append(lonCells, c)
		}
	} else {
		// the box wraps the 0/360 meridian
		for c := cMin; c < g.chunksPerStripe(); c++ {
			lonCells = append(lonCells, c)
		}
		for c := 0; c <= cMax; c++ {
			lonCells = append(lonCells, c)
		}
	}

	var chunks []int
	for s := sMin; s <= sMax; s++ {
		for _, c := range lonCells {
			chunks = append(chunks, s*g.chunksPerStripe()+c)
		}
	}
	return chunks
}

// boundingBox reduces any area restrictor to a lon/lat bounding box.
func boundingBox(r *query.AreaRestrictor) (lonMin, lonMax, latMin, latMax float64, ok bool) {
	p := r.Params
	switch r.Shape {
	case query.AreaBox:
		if len(p) != 4 {
			return 0, 0, 0, 0, false
		}
		return p[0], p[2], p[1], p[3], true
	case query.AreaCircle:
		if len(p) != 3 {
			return 0, 0, 0, 0, false
		}
		return p[0] - p[2], p[0] + p[2], p[1] - p[2], p[1] + p[2], true
	case query.AreaEllipse:
		if len(p) < 4 {
			return 0, 0, 0, 0, false
		}
		// bound by the semi-major axis, given in arcseconds
		r := p[2] / 3600.0
		return p[0] - r, p[0] + r, p[1] - r, p[1] + r, true
	case query.AreaPoly, query.AreaHull:
		if len(p) < 6 || len(p)%2 != 0 {
			return 0, 0, 0, 0, false
		}
		lonMin, latMin = p[0], p[1]
		lonMax, latMax = p[0], p[1]
		for i := 2; i < len(p); i += 2 {
			lonMin = math.Min(lonMin, p[i])
			lonMax = math.Max(lonMax, p[i])
			latMin = math.Min(latMin, p[i+1])
			latMax = math.Max(latMax, p[i+1])
		}
		return lonMin, lonMax, latMin, latMax, true
	}
	return 0, 0, 0, 0, false
}

func normalizeLon(lon float64) float64 {
	lon = math.Mod(lon, 360)
	if lon < 0 {
		lon += 360
	}
	return lon
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
