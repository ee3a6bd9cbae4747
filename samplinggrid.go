/*
Copyright © 2024 the spatialprep authors.
This file is part of spatialprep.

spatialprep is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

spatialprep is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with spatialprep.  If not, see <http://www.gnu.org/licenses/>.
*/

package spatialprep

import (
	"fmt"
	"math"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"
	goshp "github.com/jonas-p/go-shp"

	"github.com/eurotiger/spatialprep/internal/geotiff"
)

// Origin is the corner of the globe where cell numbering starts.
type Origin int

// Grid origins. Cell IDs increase eastward along each row and then row by
// row away from the origin.
const (
	NorthWest Origin = iota
	SouthWest
)

func (o Origin) String() string {
	switch o {
	case NorthWest:
		return "northwest"
	case SouthWest:
		return "southwest"
	}
	return fmt.Sprintf("Origin(%d)", int(o))
}

// ParseOrigin parses "northwest" or "southwest".
func ParseOrigin(s string) (Origin, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "northwest", "nw":
		return NorthWest, nil
	case "southwest", "sw":
		return SouthWest, nil
	}
	return 0, fmt.Errorf("spatialprep: invalid sampling grid origin %q; must be northwest or southwest", s)
}

// snap is the tolerance, in cells, within which a coordinate is considered
// to lie on a cell edge.
const snap = 1e-9

// SamplingGrid is a global grid of square cells in geographic coordinates.
// Only the covered window of rows and columns is written out, but cell IDs
// are unique over the whole globe.
type SamplingGrid struct {
	CellSize float64
	Origin   Origin

	// Nx and Ny are the global numbers of columns and rows.
	Nx, Ny int

	// Row0..Row1 and Col0..Col1 are the inclusive ranges of covered cells.
	Row0, Row1, Col0, Col1 int
}

// GridCell is one cell of a sampling grid.
type GridCell struct {
	geom.Polygon
	Row, Col, ID int
}

// NewSamplingGrid creates a global grid with the given cell size in
// degrees, which must divide both 360 and 180. The covered window is
// initially the whole globe.
func NewSamplingGrid(cellSize float64, origin Origin) (*SamplingGrid, error) {
	if !(cellSize > 0) || cellSize > 180 {
		return nil, fmt.Errorf("spatialprep: invalid sampling grid cell size %g", cellSize)
	}
	if origin != NorthWest && origin != SouthWest {
		return nil, fmt.Errorf("spatialprep: invalid sampling grid origin %v", origin)
	}
	nx, ny := math.Round(360/cellSize), math.Round(180/cellSize)
	if math.Abs(nx*cellSize-360) > snap*360 || math.Abs(ny*cellSize-180) > snap*180 {
		return nil, fmt.Errorf("spatialprep: sampling grid cell size %g does not divide 360 and 180 degrees", cellSize)
	}
	if nx*ny > math.MaxInt32 {
		return nil, fmt.Errorf("spatialprep: sampling grid with cell size %g has %g cells, "+
			"more than can be stored in a 32-bit raster", cellSize, nx*ny)
	}
	g := &SamplingGrid{CellSize: cellSize, Origin: origin, Nx: int(nx), Ny: int(ny)}
	g.Row1, g.Col1 = g.Ny-1, g.Nx-1
	return g, nil
}

// CellID returns the ID of the cell at row, col.
func (g *SamplingGrid) CellID(row, col int) int { return row*g.Nx + col + 1 }

// RowCol returns the row and column of the cell with the given ID.
func (g *SamplingGrid) RowCol(id int) (row, col int, err error) {
	if id < 1 || id > g.Nx*g.Ny {
		return 0, 0, fmt.Errorf("spatialprep: cell ID %d is outside of the range 1 to %d", id, g.Nx*g.Ny)
	}
	return (id - 1) / g.Nx, (id - 1) % g.Nx, nil
}

// rowLat returns the latitude of the edge of row that is nearest to the
// origin.
func (g *SamplingGrid) rowLat(row int) float64 {
	if g.Origin == NorthWest {
		return 90 - float64(row)*g.CellSize
	}
	return -90 + float64(row)*g.CellSize
}

// CellBounds returns the extent of the cell at row, col.
func (g *SamplingGrid) CellBounds(row, col int) *geom.Bounds {
	x := -180 + float64(col)*g.CellSize
	y0, y1 := g.rowLat(row), g.rowLat(row+1)
	return &geom.Bounds{
		Min: geom.Point{X: x, Y: math.Min(y0, y1)},
		Max: geom.Point{X: x + g.CellSize, Y: math.Max(y0, y1)},
	}
}

// CellRange returns the inclusive ranges of rows and columns of the global
// grid that overlap b. ok is false if b is empty.
func (g *SamplingGrid) CellRange(b *geom.Bounds) (row0, row1, col0, col1 int, ok bool) {
	if b.Min.X > b.Max.X || b.Min.Y > b.Max.Y {
		return 0, 0, 0, 0, false
	}
	d := g.CellSize
	col0 = int(math.Floor((b.Min.X+180)/d + snap))
	col1 = int(math.Ceil((b.Max.X+180)/d-snap)) - 1
	if g.Origin == NorthWest {
		row0 = int(math.Floor((90-b.Max.Y)/d + snap))
		row1 = int(math.Ceil((90-b.Min.Y)/d-snap)) - 1
	} else {
		row0 = int(math.Floor((b.Min.Y+90)/d + snap))
		row1 = int(math.Ceil((b.Max.Y+90)/d-snap)) - 1
	}
	// Degenerate bounds still touch one cell.
	col1 = max(col1, col0)
	row1 = max(row1, row0)
	col0, col1 = max(col0, 0), min(col1, g.Nx-1)
	row0, row1 = max(row0, 0), min(row1, g.Ny-1)
	return row0, row1, col0, col1, col0 <= col1 && row0 <= row1
}

// Cover sets the covered window to the cells overlapping b, with the
// corners of b rounded outward to cell edges and clamped to the globe.
func (g *SamplingGrid) Cover(b *geom.Bounds) error {
	row0, row1, col0, col1, ok := g.CellRange(b)
	if !ok {
		return fmt.Errorf("spatialprep: sampling grid extent %+v does not overlap the globe", *b)
	}
	g.Row0, g.Row1, g.Col0, g.Col1 = row0, row1, col0, col1
	return nil
}

// Extent returns the bounds of the covered window.
func (g *SamplingGrid) Extent() *geom.Bounds {
	b := g.CellBounds(g.Row0, g.Col0)
	b.Extend(g.CellBounds(g.Row1, g.Col1))
	return b
}

// Cells returns the cells in the covered window, in ID order.
func (g *SamplingGrid) Cells() []*GridCell {
	o := make([]*GridCell, 0, (g.Row1-g.Row0+1)*(g.Col1-g.Col0+1))
	for row := g.Row0; row <= g.Row1; row++ {
		for col := g.Col0; col <= g.Col1; col++ {
			o = append(o, &GridCell{
				Polygon: boundsPolygon(g.CellBounds(row, col), 0),
				Row:     row,
				Col:     col,
				ID:      g.CellID(row, col),
			})
		}
	}
	return o
}

// WriteGeoTIFF writes the covered window as a GeoTIFF in geographic
// coordinates whose pixel values are cell IDs.
func (g *SamplingGrid) WriteGeoTIFF(path string) error {
	e := g.Extent()
	img := &geotiff.Int32Image{
		Georef:     geotiff.Georef{X0: e.Min.X, Y0: e.Max.Y, Dx: g.CellSize, Dy: g.CellSize},
		Nx:         g.Col1 - g.Col0 + 1,
		Ny:         g.Row1 - g.Row0 + 1,
		EPSG:       geotiff.EPSGWGS84,
		Geographic: true,
	}
	img.Data = make([]int32, 0, img.Nx*img.Ny)
	for i := 0; i < img.Ny; i++ {
		// Raster rows run from north to south.
		row := g.Row0 + i
		if g.Origin == SouthWest {
			row = g.Row1 - i
		}
		for col := g.Col0; col <= g.Col1; col++ {
			img.Data = append(img.Data, int32(g.CellID(row, col)))
		}
	}
	if err := geotiff.WriteInt32(path, img); err != nil {
		return fmt.Errorf("spatialprep: writing sampling grid raster: %v", err)
	}
	return nil
}

// WriteToShp writes the cells in the covered window to a shapefile at path.
func (g *SamplingGrid) WriteToShp(path string) error {
	fields := []goshp.Field{
		goshp.NumberField("id", 10),
		goshp.NumberField("row", 10),
		goshp.NumberField("col", 10),
	}
	return writeShp(path, WGS84, fields, func(e *shp.Encoder) error {
		for _, cell := range g.Cells() {
			if err := e.EncodeFields(cell.Polygon, cell.ID, cell.Row, cell.Col); err != nil {
				return fmt.Errorf("spatialprep: writing sampling grid shapefile: %v", err)
			}
		}
		return nil
	})
}

// WGS84 is the proj4 definition of geographic WGS84 coordinates.
const WGS84 = "+proj=longlat +datum=WGS84 +no_defs"

// RasterExtent returns the extent of r in geographic coordinates. The
// raster edges are sampled at n points each before transforming, so that
// curved edges in the geographic system are bounded.
func RasterExtent(r *geotiff.Raster, src, geo *proj.SR, n int) (*geom.Bounds, error) {
	t, err := src.NewTransform(geo)
	if err != nil {
		return nil, fmt.Errorf("spatialprep: creating raster transform: %v", err)
	}
	if n < 2 {
		n = 2
	}
	rb := r.Bounds()
	o := geom.NewBounds()
	for i := 0; i < n; i++ {
		f := float64(i) / float64(n-1)
		x := rb.Min.X + f*(rb.Max.X-rb.Min.X)
		y := rb.Min.Y + f*(rb.Max.Y-rb.Min.Y)
		for _, p := range []geom.Point{
			{X: x, Y: rb.Min.Y}, {X: x, Y: rb.Max.Y},
			{X: rb.Min.X, Y: y}, {X: rb.Max.X, Y: y},
		} {
			pt, err := p.Transform(t)
			if err != nil {
				return nil, fmt.Errorf("spatialprep: transforming raster extent: %v", err)
			}
			if !finite(pt.(geom.Point)) {
				return nil, fmt.Errorf("spatialprep: raster corner (%g, %g) has no geographic coordinates", p.X, p.Y)
			}
			o.Extend(pt.Bounds())
		}
	}
	return o, nil
}

// ExpandExtent scales b about its center by factor.
func ExpandExtent(b *geom.Bounds, factor float64) *geom.Bounds {
	cx, cy := (b.Min.X+b.Max.X)/2, (b.Min.Y+b.Max.Y)/2
	hx, hy := (b.Max.X-b.Min.X)/2*factor, (b.Max.Y-b.Min.Y)/2*factor
	return &geom.Bounds{
		Min: geom.Point{X: cx - hx, Y: cy - hy},
		Max: geom.Point{X: cx + hx, Y: cy + hy},
	}
}
