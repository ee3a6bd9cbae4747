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

package geotiff

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
)

// EPSGWGS84 is the EPSG code of geographic WGS84 coordinates.
const EPSGWGS84 = 4326

// Int32Image holds the contents of an int32 GeoTIFF to be written.
type Int32Image struct {
	Georef
	Nx, Ny int
	Data   []int32

	// EPSG is the code of the coordinate reference system. If Geographic
	// is true it is written as a geographic CRS, otherwise as a projected one.
	EPSG       int
	Geographic bool

	NoData    int32
	HasNoData bool
}

type outEntry struct {
	tag, typ uint16
	count    uint32
	data     []byte
}

// WriteInt32 writes img to path as an uncompressed single-strip GeoTIFF.
func WriteInt32(path string, img *Int32Image) error {
	r, err := img.raster()
	if err != nil {
		return fmt.Errorf("geotiff: writing %s: %v", path, err)
	}
	return Write(path, r)
}

// EncodeInt32 encodes img as a GeoTIFF to w.
func EncodeInt32(w io.Writer, img *Int32Image) error {
	r, err := img.raster()
	if err != nil {
		return err
	}
	return Encode(w, r)
}

func (img *Int32Image) raster() (*Raster, error) {
	if len(img.Data) != img.Nx*img.Ny {
		return nil, fmt.Errorf("have %d pixels but want %dx%d", len(img.Data), img.Nx, img.Ny)
	}
	r := &Raster{
		Georef:     img.Georef,
		Nx:         img.Nx,
		Ny:         img.Ny,
		Kind:       Int32,
		Pix:        make([]byte, 4*len(img.Data)),
		NoData:     int(img.NoData),
		HasNoData:  img.HasNoData,
		EPSG:       img.EPSG,
		Geographic: img.Geographic,
	}
	for i, v := range img.Data {
		binary.BigEndian.PutUint32(r.Pix[4*i:], uint32(v))
	}
	return r, nil
}

// Write writes r to path as an uncompressed single-strip GeoTIFF. The file
// is written next to path and renamed into place once complete.
func Write(path string, r *Raster) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("geotiff: %v", err)
	}
	w := bufio.NewWriter(f)
	err = Encode(w, r)
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("geotiff: writing %s: %v", path, err)
	}
	return nil
}

// Encode encodes r as a big-endian GeoTIFF to w. The CRS geokey is only
// written if r.EPSG is set.
func Encode(w io.Writer, r *Raster) error {
	size := r.Kind.Size()
	if len(r.Pix) != r.Nx*r.Ny*size {
		return fmt.Errorf("have %d bytes but want %dx%d %v pixels", len(r.Pix), r.Nx, r.Ny, r.Kind)
	}
	stripBytes := uint64(len(r.Pix))
	bo := binary.BigEndian

	short := func(v ...uint16) []byte {
		b := make([]byte, 2*len(v))
		for i, x := range v {
			bo.PutUint16(b[2*i:], x)
		}
		return b
	}
	long := func(v uint32) []byte {
		b := make([]byte, 4)
		bo.PutUint32(b, v)
		return b
	}
	double := func(v ...float64) []byte {
		b := make([]byte, 8*len(v))
		for i, x := range v {
			bo.PutUint64(b[8*i:], math.Float64bits(x))
		}
		return b
	}

	modelType, csKey := uint16(modelTypeProjected), uint16(keyProjectedCSType)
	if r.Geographic {
		modelType, csKey = modelTypeGeographic, keyGeographicType
	}
	geoKeys := []uint16{
		keyGTModelType, 0, 1, modelType,
		keyGTRasterType, 0, 1, 1,
	}
	if r.EPSG != 0 {
		geoKeys = append(geoKeys, csKey, 0, 1, uint16(r.EPSG))
	}
	geoKeys = append([]uint16{1, 1, 0, uint16(len(geoKeys) / 4)}, geoKeys...)

	format := uint16(1)
	if r.Kind.signed() {
		format = 2
	}
	entries := []outEntry{
		{tagImageWidth, dtLong, 1, long(uint32(r.Nx))},
		{tagImageLength, dtLong, 1, long(uint32(r.Ny))},
		{tagBitsPerSample, dtShort, 1, short(uint16(8 * size))},
		{tagCompression, dtShort, 1, short(1)},
		{tagPhotometric, dtShort, 1, short(1)},
		{tagStripOffsets, dtLong, 1, nil}, // filled in below
		{tagSamplesPerPixel, dtShort, 1, short(1)},
		{tagRowsPerStrip, dtLong, 1, long(uint32(r.Ny))},
		{tagStripByteCounts, dtLong, 1, nil},
		{tagPlanarConfig, dtShort, 1, short(1)},
		{tagSampleFormat, dtShort, 1, short(format)},
		{tagModelPixelScale, dtDouble, 3, double(r.Dx, r.Dy, 0)},
		{tagModelTiepoint, dtDouble, 6, double(0, 0, 0, r.X0, r.Y0, 0)},
		{tagGeoKeyDirectory, dtShort, uint32(len(geoKeys)), short(geoKeys...)},
	}
	if r.HasNoData {
		nd := append([]byte(strconv.Itoa(r.NoData)), 0)
		entries = append(entries, outEntry{tagGDALNoData, dtASCII, uint32(len(nd)), nd})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	ifdSize := 2 + 12*len(entries) + 4
	extraOffset := 8 + ifdSize
	var extra bytes.Buffer
	offsets := make([]uint32, len(entries))
	for i, e := range entries {
		if len(e.data) > 4 {
			offsets[i] = uint32(extraOffset + extra.Len())
			extra.Write(e.data)
		}
	}
	stripOffset := uint64(extraOffset + extra.Len())
	if stripOffset+stripBytes > math.MaxUint32 {
		return fmt.Errorf("image of %dx%d is too large for a classic TIFF", r.Nx, r.Ny)
	}
	for i := range entries {
		switch entries[i].tag {
		case tagStripOffsets:
			entries[i].data = long(uint32(stripOffset))
		case tagStripByteCounts:
			entries[i].data = long(uint32(stripBytes))
		}
	}

	var hdr bytes.Buffer
	hdr.WriteString("MM")
	hdr.Write(short(42))
	hdr.Write(long(8))
	hdr.Write(short(uint16(len(entries))))
	for i, e := range entries {
		hdr.Write(short(e.tag, e.typ))
		hdr.Write(long(e.count))
		if len(e.data) > 4 {
			hdr.Write(long(offsets[i]))
			continue
		}
		v := make([]byte, 4)
		copy(v, e.data)
		hdr.Write(v)
	}
	hdr.Write(long(0)) // no further IFDs
	hdr.Write(extra.Bytes())
	if _, err := w.Write(hdr.Bytes()); err != nil {
		return err
	}
	_, err := w.Write(r.Pix)
	return err
}
