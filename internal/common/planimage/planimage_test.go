package planimage

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"
	"testing"

	"ha-floorplan/internal/common/apperr"
	"ha-floorplan/pkg/layout"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDecodeSizePNG(t *testing.T) {
	size, format, err := DecodeSize(encodePNG(t, 320, 200))
	if err != nil {
		t.Fatalf("DecodeSize: %v", err)
	}
	if format != "png" || size != (layout.Size{Width: 320, Height: 200}) {
		t.Errorf("got %v %s", size, format)
	}
}

func TestDecodeSizeSVG(t *testing.T) {
	data := []byte(`<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 1200 800"><rect/></svg>`)
	size, format, err := DecodeSize(data)
	if err != nil {
		t.Fatalf("DecodeSize: %v", err)
	}
	if format != "svg" || size != (layout.Size{Width: 1200, Height: 800}) {
		t.Errorf("got %v %s", size, format)
	}
}

func TestDecodeSizeRejectsGarbage(t *testing.T) {
	_, _, err := DecodeSize([]byte("definitely not an image"))
	if !apperr.Is(err, apperr.CodeAssetUnavailable) {
		t.Errorf("err = %v, want ASSET_UNAVAILABLE", err)
	}
}

func TestParseSVGSize(t *testing.T) {
	tests := []struct {
		name    string
		svg     string
		want    layout.Size
		wantErr bool
	}{
		{"width and height", `<svg width="800" height="600"/>`, layout.Size{Width: 800, Height: 600}, false},
		{"px units", `<svg width="800px" height="600px" viewBox="0 0 10 10"/>`, layout.Size{Width: 800, Height: 600}, false},
		{"viewBox only", `<svg viewBox="0 0 400 300"/>`, layout.Size{Width: 400, Height: 300}, false},
		{"viewBox commas", `<svg viewBox="0,0,400,300"/>`, layout.Size{Width: 400, Height: 300}, false},
		{"percent falls back", `<svg width="100%" height="100%" viewBox="0 0 400 300"/>`, layout.Size{Width: 400, Height: 300}, false},
		{"width with ratio", `<svg width="800" viewBox="0 0 400 300"/>`, layout.Size{Width: 800, Height: 600}, false},
		{"height with ratio", `<svg height="150" viewBox="0 0 400 300"/>`, layout.Size{Width: 200, Height: 150}, false},
		{"inches", `<svg width="2in" height="1in"/>`, layout.Size{Width: 192, Height: 96}, false},
		{"nothing usable", `<svg width="100%"/>`, layout.Size{}, true},
		{"not svg", `<html/>`, layout.Size{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSVGSize(strings.NewReader(tt.svg))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSVGSize: %v", err)
			}
			if math.Abs(got.Width-tt.want.Width) > 1e-9 || math.Abs(got.Height-tt.want.Height) > 1e-9 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
