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

// Package geotiff reads single-band categorical GeoTIFF rasters and writes
// integer GeoTIFF rasters. Pixel decoding of compressed 8- and 16-bit images
// is delegated to golang.org/x/image/tiff; this package only adds signed
// samples, 32-bit strips and the georeferencing tags that the image decoder
// ignores.
package geotiff

import (
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"golang.org/x/image/tiff"
)

// TIFF and GeoTIFF tag numbers.
const (
	tagImageWidth       = 256
	tagImageLength      = 257
	tagBitsPerSample    = 258
	tagCompression      = 259
	tagPhotometric      = 262
	tagStripOffsets     = 273
	tagSamplesPerPixel  = 277
	tagRowsPerStrip     = 278
	tagStripByteCounts  = 279
	tagPlanarConfig     = 284
	tagSampleFormat     = 339
	tagModelPixelScale  = 33550
	tagModelTiepoint    = 33922
	tagModelTransform   = 34264
	tagGeoKeyDirectory  = 34735
	tagGDALNoData       = 42113
	keyGTModelType      = 1024
	keyGTRasterType     = 1025
	keyGeographicType   = 2048
	keyProjectedCSType  = 3072
	keyUserDefined      = 32767
	rasterPixelIsPoint  = 2
	modelTypeProjected  = 1
	modelTypeGeographic = 2
)

// TIFF field types.
const (
	dtByte     = 1
	dtASCII    = 2
	dtShort    = 3
	dtLong     = 4
	dtRational = 5
	dtDouble   = 12
)

var typeSize = map[uint16]int{dtByte: 1, dtASCII: 1, dtShort: 2, dtLong: 4, dtRational: 8, dtDouble: 8}

// SampleKind is the storage type of raster samples.
type SampleKind int

// Sample kinds.
const (
	Uint8 SampleKind = iota
	Int8
	Uint16
	Int16
	Uint32
	Int32
)

// Size returns the number of bytes per sample.
func (k SampleKind) Size() int {
	switch k {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	default:
		return 4
	}
}

func (k SampleKind) signed() bool { return k == Int8 || k == Int16 || k == Int32 }

func (k SampleKind) String() string {
	if k.signed() {
		return fmt.Sprintf("int%d", 8*k.Size())
	}
	return fmt.Sprintf("uint%d", 8*k.Size())
}

// kindOf returns the kind for the given BitsPerSample and SampleFormat.
func kindOf(bits, format uint32) (SampleKind, error) {
	if format != 1 && format != 2 {
		return 0, fmt.Errorf("sample format %d is not supported; land cover must be an integer raster", format)
	}
	signed := format == 2
	switch {
	case bits <= 8 && !signed:
		return Uint8, nil
	case bits == 8:
		return Int8, nil
	case bits == 16 && signed:
		return Int16, nil
	case bits == 16:
		return Uint16, nil
	case bits == 32 && signed:
		return Int32, nil
	case bits == 32:
		return Uint32, nil
	}
	return 0, fmt.Errorf("%d-bit samples with sample format %d are not supported", bits, format)
}

// Georef locates a north-up raster: (X0, Y0) is the outer top-left corner
// and Dx, Dy are the positive cell width and height.
type Georef struct {
	X0, Y0, Dx, Dy float64
}

// Raster is a single-band integer raster stored row-major from the top row.
// Pix holds Kind.Size() big-endian bytes per cell.
type Raster struct {
	Georef
	Nx, Ny int
	Kind   SampleKind
	Pix    []byte

	NoData    int
	HasNoData bool

	// EPSG is the code of the raster's coordinate reference system, or 0 if
	// the file does not name one. Geographic is true for a geographic CRS.
	EPSG       int
	Geographic bool
}

// NewRaster returns a raster of the given kind holding data.
func NewRaster(g Georef, nx, ny int, kind SampleKind, data []int) *Raster {
	r := &Raster{Georef: g, Nx: nx, Ny: ny, Kind: kind, Pix: make([]byte, nx*ny*kind.Size())}
	for i, v := range data {
		r.Set(i/nx, i%nx, v)
	}
	return r
}

// At returns the value at the given row and column.
func (r *Raster) At(row, col int) int {
	i := (row*r.Nx + col) * r.Kind.Size()
	switch r.Kind {
	case Uint8:
		return int(r.Pix[i])
	case Int8:
		return int(int8(r.Pix[i]))
	case Uint16:
		return int(binary.BigEndian.Uint16(r.Pix[i:]))
	case Int16:
		return int(int16(binary.BigEndian.Uint16(r.Pix[i:])))
	case Uint32:
		return int(binary.BigEndian.Uint32(r.Pix[i:]))
	default:
		return int(int32(binary.BigEndian.Uint32(r.Pix[i:])))
	}
}

// Set sets the value at the given row and column, truncated to r.Kind.
func (r *Raster) Set(row, col, v int) {
	i := (row*r.Nx + col) * r.Kind.Size()
	switch r.Kind.Size() {
	case 1:
		r.Pix[i] = uint8(v)
	case 2:
		binary.BigEndian.PutUint16(r.Pix[i:], uint16(v))
	default:
		binary.BigEndian.PutUint32(r.Pix[i:], uint32(v))
	}
}

// IsNoData reports whether v is the raster's no-data value.
func (r *Raster) IsNoData(v int) bool { return r.HasNoData && v == r.NoData }

// Bounds returns the outer extent of the raster.
func (r *Raster) Bounds() *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: r.X0, Y: r.Y0 - float64(r.Ny)*r.Dy},
		Max: geom.Point{X: r.X0 + float64(r.Nx)*r.Dx, Y: r.Y0},
	}
}

// CellBounds returns the extent of the cell at row, col.
func (r *Raster) CellBounds(row, col int) *geom.Bounds {
	x := r.X0 + float64(col)*r.Dx
	y := r.Y0 - float64(row)*r.Dy
	return &geom.Bounds{
		Min: geom.Point{X: x, Y: y - r.Dy},
		Max: geom.Point{X: x + r.Dx, Y: y},
	}
}

// CellRange returns the inclusive row and column ranges of cells that overlap
// b. ok is false if b does not overlap the raster.
func (r *Raster) CellRange(b *geom.Bounds) (row0, row1, col0, col1 int, ok bool) {
	col0 = int(math.Floor((b.Min.X - r.X0) / r.Dx))
	col1 = int(math.Ceil((b.Max.X-r.X0)/r.Dx)) - 1
	row0 = int(math.Floor((r.Y0 - b.Max.Y) / r.Dy))
	row1 = int(math.Ceil((r.Y0-b.Min.Y)/r.Dy)) - 1
	if col0 < 0 {
		col0 = 0
	}
	if row0 < 0 {
		row0 = 0
	}
	if col1 > r.Nx-1 {
		col1 = r.Nx - 1
	}
	if row1 > r.Ny-1 {
		row1 = r.Ny - 1
	}
	ok = col0 <= col1 && row0 <= row1
	return
}

// Window returns the part of r that overlaps b. The returned raster shares no
// memory with r. It returns nil if b does not overlap r.
func (r *Raster) Window(b *geom.Bounds) *Raster {
	row0, row1, col0, col1, ok := r.CellRange(b)
	if !ok {
		return nil
	}
	o := *r
	o.Georef = Georef{
		X0: r.X0 + float64(col0)*r.Dx,
		Y0: r.Y0 - float64(row0)*r.Dy,
		Dx: r.Dx,
		Dy: r.Dy,
	}
	o.Nx, o.Ny = col1-col0+1, row1-row0+1
	s := r.Kind.Size()
	o.Pix = make([]byte, 0, o.Nx*o.Ny*s)
	for row := row0; row <= row1; row++ {
		o.Pix = append(o.Pix, r.Pix[(row*r.Nx+col0)*s:(row*r.Nx+col1+1)*s]...)
	}
	return &o
}

// Read reads the GeoTIFF at path.
func Read(path string) (*Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geotiff: %v", err)
	}
	defer f.Close()
	r, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("geotiff: reading %s: %v", path, err)
	}
	return r, nil
}

// Decode decodes a GeoTIFF from r, which is satisfied by *os.File and
// *bytes.Reader.
func Decode(r io.ReaderAt) (*Raster, error) {
	d, err := readIFD(r)
	if err != nil {
		return nil, err
	}
	o := new(Raster)
	if o.Georef, err = d.georef(); err != nil {
		return nil, err
	}
	o.EPSG, o.Geographic = d.crs()
	if nd, ok := d.entries[tagGDALNoData]; ok {
		v, err := strconv.ParseFloat(strings.TrimSpace(strings.Trim(nd.ascii(), "\x00")), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid GDAL_NODATA value %q", nd.ascii())
		}
		o.NoData, o.HasNoData = int(v), true
	}
	if s := d.first(tagSamplesPerPixel, 1); s != 1 {
		return nil, fmt.Errorf("only single-band rasters are supported, have %d bands", s)
	}
	bits, format := d.first(tagBitsPerSample, 1), d.first(tagSampleFormat, 1)
	if o.Kind, err = kindOf(bits, format); err != nil {
		return nil, err
	}
	o.Nx = int(d.first(tagImageWidth, 0))
	o.Ny = int(d.first(tagImageLength, 0))

	if bits == 32 {
		return o, d.readStrips(r, o)
	}
	return o, d.decodeImage(r, o, bits)
}

// decodeImage decodes 8-bit and smaller or 16-bit samples with the
// x/image decoder, reusing its pixel buffer.
func (d *ifd) decodeImage(r io.ReaderAt, o *Raster, bits uint32) error {
	src := r
	if e := d.entries[tagSampleFormat]; o.Kind.signed() {
		// The image decoder refuses signed samples, so present them as
		// unsigned and reinterpret the bytes afterwards.
		if e.count != 1 || e.typ != dtShort {
			return fmt.Errorf("unsupported sample format entry")
		}
		one := make([]byte, 2)
		d.order.PutUint16(one, 1)
		src = &overlay{ReaderAt: r, off: e.pos, b: one}
	}
	img, err := tiff.Decode(io.NewSectionReader(src, 0, math.MaxInt64))
	if err != nil {
		return err
	}
	var pix []byte
	var stride int
	switch im := img.(type) {
	case *image.Paletted:
		pix, stride = im.Pix, im.Stride
	case *image.Gray:
		pix, stride = im.Pix, im.Stride
	case *image.Gray16:
		pix, stride = im.Pix, im.Stride
	default:
		return fmt.Errorf("unsupported categorical image type %T", img)
	}
	b := img.Bounds()
	if b.Dx() != o.Nx || b.Dy() != o.Ny {
		return fmt.Errorf("have %dx%d pixels but want %dx%d", b.Dx(), b.Dy(), o.Nx, o.Ny)
	}
	rowBytes := o.Nx * o.Kind.Size()
	if stride == rowBytes {
		o.Pix = pix[:rowBytes*o.Ny]
	} else {
		o.Pix = make([]byte, 0, rowBytes*o.Ny)
		for y := 0; y < o.Ny; y++ {
			o.Pix = append(o.Pix, pix[y*stride:y*stride+rowBytes]...)
		}
	}
	if _, pal := img.(*image.Paletted); pal {
		return nil
	}
	if d.first(tagPhotometric, 1) == 0 {
		// WhiteIsZero samples come back inverted.
		for i := range o.Pix {
			o.Pix[i] = ^o.Pix[i]
		}
	}
	if bits < 8 {
		// Samples narrower than a byte come back scaled to 0-255.
		top := uint32(1)<<bits - 1
		for i, v := range o.Pix {
			o.Pix[i] = uint8((uint32(v)*top + 127) / 255)
		}
	}
	return nil
}

// overlay replaces the bytes at off with b.
type overlay struct {
	io.ReaderAt
	off int64
	b   []byte
}

func (o *overlay) ReadAt(p []byte, off int64) (int, error) {
	n, err := o.ReaderAt.ReadAt(p, off)
	for i, v := range o.b {
		if j := o.off + int64(i) - off; j >= 0 && j < int64(n) {
			p[j] = v
		}
	}
	return n, err
}

type ifdEntry struct {
	typ   uint16
	count uint32
	raw   []byte
	pos   int64 // file offset of the value
}

type ifd struct {
	order   binary.ByteOrder
	entries map[uint16]ifdEntry
}

// readIFD reads the first image file directory of a classic TIFF file.
func readIFD(r io.ReaderAt) (*ifd, error) {
	var hdr [8]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return nil, fmt.Errorf("reading TIFF header: %v", err)
	}
	d := &ifd{entries: make(map[uint16]ifdEntry)}
	switch string(hdr[0:2]) {
	case "II":
		d.order = binary.LittleEndian
	case "MM":
		d.order = binary.BigEndian
	default:
		return nil, fmt.Errorf("not a TIFF file")
	}
	if m := d.order.Uint16(hdr[2:4]); m != 42 {
		return nil, fmt.Errorf("unsupported TIFF version %d (BigTIFF is not supported)", m)
	}
	off := int64(d.order.Uint32(hdr[4:8]))
	var nb [2]byte
	if _, err := r.ReadAt(nb[:], off); err != nil {
		return nil, fmt.Errorf("reading IFD: %v", err)
	}
	n := int(d.order.Uint16(nb[:]))
	buf := make([]byte, 12*n)
	if _, err := r.ReadAt(buf, off+2); err != nil {
		return nil, fmt.Errorf("reading IFD: %v", err)
	}
	for i := 0; i < n; i++ {
		e := buf[12*i : 12*i+12]
		tag := d.order.Uint16(e[0:2])
		ent := ifdEntry{typ: d.order.Uint16(e[2:4]), count: d.order.Uint32(e[4:8])}
		size, ok := typeSize[ent.typ]
		if !ok {
			continue
		}
		length := size * int(ent.count)
		if length <= 4 {
			ent.raw = append([]byte(nil), e[8:8+length]...)
			ent.pos = off + 2 + int64(12*i) + 8
		} else {
			ent.raw = make([]byte, length)
			ent.pos = int64(d.order.Uint32(e[8:12]))
			if _, err := r.ReadAt(ent.raw, ent.pos); err != nil {
				return nil, fmt.Errorf("reading tag %d: %v", tag, err)
			}
		}
		d.entries[tag] = ent
	}
	return d, nil
}

func (e ifdEntry) ascii() string { return string(e.raw) }

func (d *ifd) uints(tag uint16) []uint32 {
	e, ok := d.entries[tag]
	if !ok {
		return nil
	}
	o := make([]uint32, e.count)
	for i := range o {
		switch e.typ {
		case dtByte:
			o[i] = uint32(e.raw[i])
		case dtShort:
			o[i] = uint32(d.order.Uint16(e.raw[2*i:]))
		case dtLong:
			o[i] = d.order.Uint32(e.raw[4*i:])
		}
	}
	return o
}

func (d *ifd) first(tag uint16, def uint32) uint32 {
	if v := d.uints(tag); len(v) > 0 {
		return v[0]
	}
	return def
}

func (d *ifd) doubles(tag uint16) []float64 {
	e, ok := d.entries[tag]
	if !ok || e.typ != dtDouble {
		return nil
	}
	o := make([]float64, e.count)
	for i := range o {
		o[i] = math.Float64frombits(d.order.Uint64(e.raw[8*i:]))
	}
	return o
}

// geoKey returns the value of a short-valued GeoTIFF key.
func (d *ifd) geoKey(key uint32) (uint32, bool) {
	k := d.uints(tagGeoKeyDirectory)
	if len(k) < 4 {
		return 0, false
	}
	for i := 4; i+3 < len(k); i += 4 {
		if k[i] == key && k[i+1] == 0 {
			return k[i+3], true
		}
	}
	return 0, false
}

// crs returns the EPSG code named by the geokeys, or 0 for a missing or
// user-defined CRS.
func (d *ifd) crs() (epsg int, geographic bool) {
	mt, _ := d.geoKey(keyGTModelType)
	if v, ok := d.geoKey(keyProjectedCSType); ok && v != keyUserDefined && mt != modelTypeGeographic {
		return int(v), false
	}
	if v, ok := d.geoKey(keyGeographicType); ok && v != keyUserDefined {
		return int(v), true
	}
	return 0, mt == modelTypeGeographic
}

func (d *ifd) georef() (Georef, error) {
	var g Georef
	scale := d.doubles(tagModelPixelScale)
	tie := d.doubles(tagModelTiepoint)
	switch {
	case len(scale) >= 2 && len(tie) >= 6:
		g.Dx, g.Dy = scale[0], scale[1]
		g.X0 = tie[3] - tie[0]*g.Dx
		g.Y0 = tie[4] + tie[1]*g.Dy
	case len(d.doubles(tagModelTransform)) == 16:
		t := d.doubles(tagModelTransform)
		if t[1] != 0 || t[4] != 0 {
			return g, fmt.Errorf("rotated rasters are not supported")
		}
		g.Dx, g.Dy, g.X0, g.Y0 = t[0], -t[5], t[3], t[7]
	default:
		return g, fmt.Errorf("raster is not georeferenced")
	}
	if !(g.Dx > 0) || !(g.Dy > 0) {
		return g, fmt.Errorf("invalid cell size %gx%g; only north-up rasters are supported", g.Dx, g.Dy)
	}
	if rt, ok := d.geoKey(keyGTRasterType); ok && rt == rasterPixelIsPoint {
		g.X0 -= g.Dx / 2
		g.Y0 += g.Dy / 2
	}
	return g, nil
}

// readStrips reads uncompressed 32-bit strips straight into o.Pix.
func (d *ifd) readStrips(r io.ReaderAt, o *Raster) error {
	if c := d.first(tagCompression, 1); c != 1 {
		return fmt.Errorf("compressed 32-bit rasters are not supported (compression %d)", c)
	}
	offsets := d.uints(tagStripOffsets)
	counts := d.uints(tagStripByteCounts)
	if len(offsets) == 0 || len(offsets) != len(counts) {
		return fmt.Errorf("missing or inconsistent strip offsets")
	}
	o.Pix = make([]byte, o.Nx*o.Ny*4)
	n := 0
	for i, off := range offsets {
		c := int(counts[i])
		if n+c > len(o.Pix) {
			return fmt.Errorf("strip %d runs past %dx%d pixels", i, o.Nx, o.Ny)
		}
		if _, err := r.ReadAt(o.Pix[n:n+c], int64(off)); err != nil {
			return fmt.Errorf("reading strip %d: %v", i, err)
		}
		n += c
	}
	if n != len(o.Pix) {
		return fmt.Errorf("have %d pixels but want %dx%d", n/4, o.Nx, o.Ny)
	}
	if d.order == binary.LittleEndian {
		for i := 0; i < n; i += 4 {
			binary.BigEndian.PutUint32(o.Pix[i:], binary.LittleEndian.Uint32(o.Pix[i:]))
		}
	}
	return nil
}
