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
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/geom"
	"golang.org/x/image/tiff"
)

func testImage() *Int32Image {
	return &Int32Image{
		Georef: Georef{X0: 10, Y0: 50, Dx: 0.5, Dy: 0.25},
		Nx:     3,
		Ny:     2,
		Data:   []int32{1, 2, 3, -4, 2147483647, 6},
		EPSG:   EPSGWGS84,

		Geographic: true,
		NoData:     -4,
		HasNoData:  true,
	}
}

func TestInt32RoundTrip(t *testing.T) {
	img := testImage()
	var b bytes.Buffer
	if err := EncodeInt32(&b, img); err != nil {
		t.Fatal(err)
	}
	r, err := Decode(bytes.NewReader(b.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if r.Nx != 3 || r.Ny != 2 {
		t.Fatalf("have %dx%d but want 3x2", r.Nx, r.Ny)
	}
	if r.Georef != img.Georef {
		t.Errorf("have georef %+v but want %+v", r.Georef, img.Georef)
	}
	if r.Kind != Int32 {
		t.Errorf("have kind %v but want int32", r.Kind)
	}
	for i, v := range img.Data {
		if have := r.At(i/3, i%3); have != int(v) {
			t.Errorf("pixel %d: have %d but want %d", i, have, v)
		}
	}
	if r.EPSG != EPSGWGS84 || !r.Geographic {
		t.Errorf("have EPSG %d (geographic %v) but want 4326", r.EPSG, r.Geographic)
	}
	if !r.HasNoData || r.NoData != -4 {
		t.Errorf("have nodata %d (%v) but want -4", r.NoData, r.HasNoData)
	}
	if !r.IsNoData(r.At(1, 0)) {
		t.Error("pixel (1,0) should be nodata")
	}
	if r.At(1, 1) != 2147483647 {
		t.Errorf("have %d but want max int32", r.At(1, 1))
	}
}

func TestWriteInt32File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.tif")
	if err := WriteInt32(path, testImage()); err != nil {
		t.Fatal(err)
	}
	r, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	want := geom.Bounds{Min: geom.Point{X: 10, Y: 49.5}, Max: geom.Point{X: 11.5, Y: 50}}
	if *r.Bounds() != want {
		t.Errorf("have bounds %+v but want %+v", *r.Bounds(), want)
	}
}

func TestEncodeInt32WrongSize(t *testing.T) {
	img := testImage()
	img.Data = img.Data[:5]
	if err := EncodeInt32(new(bytes.Buffer), img); err == nil {
		t.Error("expected an error for a short pixel buffer")
	}
}

func TestCellRangeAndWindow(t *testing.T) {
	r := NewRaster(Georef{X0: 0, Y0: 4, Dx: 1, Dy: 1}, 4, 4, Uint16, []int{
		0, 1, 2, 3,
		4, 5, 6, 7,
		8, 9, 10, 11,
		12, 13, 14, 15,
	})
	b := &geom.Bounds{Min: geom.Point{X: 0.5, Y: 1.5}, Max: geom.Point{X: 2, Y: 3.2}}
	row0, row1, col0, col1, ok := r.CellRange(b)
	if !ok || row0 != 0 || row1 != 2 || col0 != 0 || col1 != 1 {
		t.Errorf("have rows %d-%d cols %d-%d (%v)", row0, row1, col0, col1, ok)
	}
	w := r.Window(b)
	want := []int{0, 1, 4, 5, 8, 9}
	if w.Nx != 2 || w.Ny != 3 {
		t.Fatalf("have window %dx%d but want 2x3", w.Nx, w.Ny)
	}
	for i, v := range want {
		if have := w.At(i/2, i%2); have != v {
			t.Errorf("window pixel %d: have %d but want %d", i, have, v)
		}
	}
	if len(w.Pix) != 12 {
		t.Errorf("have %d window bytes but want 12", len(w.Pix))
	}
	if w.X0 != 0 || w.Y0 != 4 {
		t.Errorf("have window origin (%g, %g)", w.X0, w.Y0)
	}
	cb := w.CellBounds(2, 1)
	if cb.Min.X != 1 || cb.Max.X != 2 || cb.Min.Y != 1 || cb.Max.Y != 2 {
		t.Errorf("have cell bounds %+v", *cb)
	}

	outside := &geom.Bounds{Min: geom.Point{X: 5, Y: 5}, Max: geom.Point{X: 6, Y: 6}}
	if w := r.Window(outside); w != nil {
		t.Error("window outside the raster should be nil")
	}
}

func TestSampleKinds(t *testing.T) {
	g := Georef{X0: 500000, Y0: 6000000, Dx: 100, Dy: 100}
	tests := []struct {
		kind   SampleKind
		data   []int
		noData int
	}{
		{Int8, []int{-128, -5, 0, 127, 44, -1}, -128},
		{Uint8, []int{255, 0, 1, 44, 128, 3}, 255},
		{Int16, []int{-32768, -300, 0, 32767, 1, -1}, -32768},
		{Uint16, []int{65535, 0, 300, 44, 40000, 3}, 65535},
		{Uint32, []int{0, 1, 4294967295, 44, 7, 70000}, 0},
	}
	for _, test := range tests {
		t.Run(test.kind.String(), func(t *testing.T) {
			in := NewRaster(g, 3, 2, test.kind, test.data)
			in.NoData, in.HasNoData = test.noData, true
			in.EPSG = 32633
			var b bytes.Buffer
			if err := Encode(&b, in); err != nil {
				t.Fatal(err)
			}
			r, err := Decode(bytes.NewReader(b.Bytes()))
			if err != nil {
				t.Fatal(err)
			}
			if r.Kind != test.kind {
				t.Errorf("have kind %v but want %v", r.Kind, test.kind)
			}
			if len(r.Pix) != 6*test.kind.Size() {
				t.Errorf("have %d bytes but want %d", len(r.Pix), 6*test.kind.Size())
			}
			for i, v := range test.data {
				if have := r.At(i/3, i%3); have != v {
					t.Errorf("pixel %d: have %d but want %d", i, have, v)
				}
			}
			if !r.IsNoData(r.At(0, 0)) {
				t.Errorf("pixel (0,0) = %d should be nodata %d", r.At(0, 0), r.NoData)
			}
			if r.IsNoData(r.At(1, 1)) {
				t.Errorf("pixel (1,1) = %d should not be nodata", r.At(1, 1))
			}
			if r.EPSG != 32633 || r.Geographic {
				t.Errorf("have EPSG %d (geographic %v) but want projected 32633", r.EPSG, r.Geographic)
			}
		})
	}
}

func TestDecodeImageLittleEndian(t *testing.T) {
	im := image.NewGray16(image.Rect(0, 0, 2, 2))
	im.SetGray16(0, 0, color.Gray16{Y: 40000})
	im.SetGray16(1, 1, color.Gray16{Y: 312})
	var b bytes.Buffer
	if err := tiff.Encode(&b, im, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		t.Fatal(err)
	}
	d, err := readIFD(bytes.NewReader(b.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	o := &Raster{Nx: 2, Ny: 2, Kind: Uint16}
	if err := d.decodeImage(bytes.NewReader(b.Bytes()), o, 16); err != nil {
		t.Fatal(err)
	}
	if o.At(0, 0) != 40000 || o.At(1, 1) != 312 || o.At(0, 1) != 0 {
		t.Errorf("have %d, %d, %d but want 40000, 312, 0", o.At(0, 0), o.At(1, 1), o.At(0, 1))
	}
}

func TestEPSGMissing(t *testing.T) {
	in := NewRaster(Georef{X0: 0, Y0: 2, Dx: 1, Dy: 1}, 2, 2, Uint8, []int{1, 2, 3, 4})
	var b bytes.Buffer
	if err := Encode(&b, in); err != nil {
		t.Fatal(err)
	}
	r, err := Decode(bytes.NewReader(b.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if r.EPSG != 0 {
		t.Errorf("have EPSG %d but want 0", r.EPSG)
	}
}

func TestFloatRejected(t *testing.T) {
	if _, err := kindOf(32, 3); err == nil {
		t.Error("expected an error for floating point samples")
	}
	if _, err := kindOf(64, 2); err == nil {
		t.Error("expected an error for 64-bit samples")
	}
}

func TestNotGeoreferenced(t *testing.T) {
	var b bytes.Buffer
	if err := tiff.Encode(&b, image.NewGray(image.Rect(0, 0, 2, 2)), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(bytes.NewReader(b.Bytes())); err == nil {
		t.Error("expected an error for a raster without georeferencing")
	}
}

func TestReadMissing(t *testing.T) {
	if _, err := Read(filepath.Join(os.TempDir(), "does-not-exist.tif")); err == nil {
		t.Error("expected an error")
	}
}
