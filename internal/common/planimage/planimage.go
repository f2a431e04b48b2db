package planimage

import (
	"bytes"
	"encoding/xml"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strconv"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"ha-floorplan/internal/common/apperr"
	"ha-floorplan/pkg/layout"
)

// ============================================================
// Plan asset size
// ============================================================

// DecodeSize определяет натуральный размер изображения плана и его
// формат. Растровые форматы читаются по заголовку, SVG по атрибутам
// width/height/viewBox корневого элемента.
func DecodeSize(data []byte) (layout.Size, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err == nil {
		size := layout.Size{Width: float64(cfg.Width), Height: float64(cfg.Height)}
		if size.Degenerate() {
			return layout.Size{}, format, apperr.New(apperr.CodeAssetUnavailable, "empty %s image", format)
		}
		return size, format, nil
	}

	size, svgErr := ParseSVGSize(bytes.NewReader(data))
	if svgErr != nil {
		return layout.Size{}, "", apperr.Wrap(apperr.CodeAssetUnavailable, err, "unsupported plan image")
	}
	return size, "svg", nil
}

// ============================================================
// SVG
// ============================================================

type svgRoot struct {
	XMLName xml.Name `xml:"svg"`
	Width   string   `xml:"width,attr"`
	Height  string   `xml:"height,attr"`
	ViewBox string   `xml:"viewBox,attr"`
}

// ParseSVGSize читает размер корневого <svg>. Абсолютные width/height
// важнее viewBox; при одной заданной стороне вторая берётся из
// пропорций viewBox.
func ParseSVGSize(r io.Reader) (layout.Size, error) {
	var svg svgRoot
	decoder := xml.NewDecoder(r)
	if err := decoder.Decode(&svg); err != nil {
		return layout.Size{}, apperr.Wrap(apperr.CodeMalformedData, err, "parse svg")
	}

	w, wok := parseLength(svg.Width)
	h, hok := parseLength(svg.Height)
	if wok && hok {
		return layout.Size{Width: w, Height: h}, nil
	}

	vb, vbok := parseViewBox(svg.ViewBox)
	switch {
	case !vbok:
		return layout.Size{}, apperr.New(apperr.CodeMalformedData, "svg without usable width/height or viewBox")
	case wok:
		return layout.Size{Width: w, Height: w * vb.Height / vb.Width}, nil
	case hok:
		return layout.Size{Width: h * vb.Width / vb.Height, Height: h}, nil
	}
	return vb, nil
}

// Единицы длины SVG в пикселях CSS (96 dpi).
var svgUnits = map[string]float64{
	"":   1,
	"px": 1,
	"pt": 96.0 / 72,
	"pc": 16,
	"in": 96,
	"cm": 96 / 2.54,
	"mm": 96 / 25.4,
}

// parseLength понимает "800", "800px", "21cm". Проценты и em
// относительны и не дают натурального размера.
func parseLength(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	i := len(s)
	for i > 0 && (s[i-1] < '0' || s[i-1] > '9') && s[i-1] != '.' {
		i--
	}
	factor, ok := svgUnits[strings.ToLower(s[i:])]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(s[:i], 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v * factor, true
}

func parseViewBox(s string) (layout.Size, bool) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' || r == '\n' })
	if len(fields) != 4 {
		return layout.Size{}, false
	}
	w, err1 := strconv.ParseFloat(fields[2], 64)
	h, err2 := strconv.ParseFloat(fields[3], 64)
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return layout.Size{}, false
	}
	return layout.Size{Width: w, Height: h}, true
}
