package render

import (
	"alcyxob/plan-delivery/internal/domain"
	"bytes"
	"fmt"
	"image/color"
	"strconv"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	bannerWidth  = 1240
	bannerHeight = 240
)

var (
	fontsOnce   sync.Once
	fontsErr    error
	boldFont    *truetype.Font
	regularFont *truetype.Font
)

func loadFonts() error {
	fontsOnce.Do(func() {
		boldFont, fontsErr = truetype.Parse(gobold.TTF)
		if fontsErr != nil {
			return
		}
		regularFont, fontsErr = truetype.Parse(goregular.TTF)
	})
	return fontsErr
}

func face(f *truetype.Font, size float64) font.Face {
	return truetype.NewFace(f, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}

// Banner draws the branded header strip as a PNG.
func Banner(b domain.Branding, title string) ([]byte, error) {
	if err := loadFonts(); err != nil {
		return nil, &Error{Op: "banner", Err: fmt.Errorf("parse font: %w", err)}
	}
	primary, err := ParseHexColor(b.PrimaryColor)
	if err != nil {
		return nil, &Error{Op: "banner", Err: err}
	}

	dc := gg.NewContext(bannerWidth, bannerHeight)
	dc.SetColor(primary)
	dc.DrawRectangle(0, 0, bannerWidth, bannerHeight)
	dc.Fill()

	// darker accent bar along the bottom edge
	dc.SetColor(shade(primary, 0.75))
	dc.DrawRectangle(0, bannerHeight-16, bannerWidth, 16)
	dc.Fill()

	dc.SetColor(color.White)
	dc.SetFontFace(face(boldFont, 64))
	dc.DrawStringAnchored(b.CompanyName, 60, 90, 0, 0.5)

	dc.SetFontFace(face(regularFont, 40))
	dc.DrawStringAnchored(title, 60, 165, 0, 0.5)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, &Error{Op: "encode", Err: fmt.Errorf("encode banner png: %w", err)}
	}
	return buf.Bytes(), nil
}

// ParseHexColor accepts #RRGGBB or #RGB.
func ParseHexColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

func shade(c color.RGBA, factor float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(c.R) * factor),
		G: uint8(float64(c.G) * factor),
		B: uint8(float64(c.B) * factor),
		A: c.A,
	}
}
