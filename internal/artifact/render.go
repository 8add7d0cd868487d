package artifact

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"
	"sync"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var (
	skyTop    = color.RGBA{0x1b, 0x10, 0x3a, 0xff}
	skyBottom = color.RGBA{0x3d, 0x1f, 0x6b, 0xff}
	gold      = color.RGBA{0xf2, 0xc9, 0x4c, 0xff}
	ink       = color.RGBA{0xf7, 0xf1, 0xff, 0xff}
	mist      = color.RGBA{0xc9, 0xb8, 0xef, 0xff}
	sealRed   = color.RGBA{0xb0, 0x2a, 0x3a, 0xff}
)

type faces struct {
	title, name, body, small, seal font.Face
}

var (
	fontsOnce     sync.Once
	regular, bold *opentype.Font
	fontsErr      error
)

// newFaces builds a face set for one render; faces are not safe for
// concurrent use, parsed fonts are.
func newFaces() (faces, error) {
	fontsOnce.Do(func() {
		if regular, fontsErr = opentype.Parse(goregular.TTF); fontsErr != nil {
			return
		}
		bold, fontsErr = opentype.Parse(gobold.TTF)
	})
	if fontsErr != nil {
		return faces{}, fmt.Errorf("artifact: parse font: %w", fontsErr)
	}
	var err error
	face := func(f *opentype.Font, size float64) font.Face {
		if err != nil {
			return nil
		}
		var out font.Face
		out, err = opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
		return out
	}
	set := faces{
		title: face(bold, 64),
		name:  face(bold, 52),
		body:  face(regular, 28),
		small: face(regular, 22),
		seal:  face(bold, 20),
	}
	if err != nil {
		return faces{}, fmt.Errorf("artifact: font face: %w", err)
	}
	return set, nil
}

// Render draws the certificate. token may be nil.
func Render(c Content, token image.Image) (*image.RGBA, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	f, err := newFaces()
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	paintBackground(img)
	strokeRect(img, image.Rect(24, 24, Width-24, Height-24), 6, gold)
	strokeRect(img, image.Rect(44, 44, Width-44, Height-44), 2, mist)

	drawCentered(img, f.title, c.Title, 170, gold)
	drawCentered(img, f.small, "awarded to", 240, mist)
	drawCentered(img, f.name, c.Player, 320, ink)

	y := 400
	for _, line := range wrap(f.body, c.Message, Width-360) {
		drawCentered(img, f.body, line, y, ink)
		y += 40
	}

	drawCentered(img, f.body, fmt.Sprintf("Mystic coins: %d", c.Coins), 640, gold)
	if !c.Issued.IsZero() {
		drawCentered(img, f.small, c.Issued.Format("January 2, 2006"), 690, mist)
	}

	if token != nil {
		placeToken(img, token, image.Rect(110, 620, 310, 820))
	}
	drawSeal(img, f.seal, image.Pt(Width-220, Height-200), 90)
	return img, nil
}

func paintBackground(img *image.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		t := float64(y-b.Min.Y) / float64(b.Dy()-1)
		row := color.RGBA{
			R: lerp(skyTop.R, skyBottom.R, t),
			G: lerp(skyTop.G, skyBottom.G, t),
			B: lerp(skyTop.B, skyBottom.B, t),
			A: 0xff,
		}
		draw.Draw(img, image.Rect(b.Min.X, y, b.Max.X, y+1), image.NewUniform(row), image.Point{}, draw.Src)
	}
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
}

func strokeRect(img *image.RGBA, r image.Rectangle, width int, c color.Color) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width),
		image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y),
		image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(img, e, src, image.Point{}, draw.Over)
	}
}

func drawCentered(img *image.RGBA, face font.Face, text string, baseline int, c color.Color) {
	d := &font.Drawer{Dst: img, Src: image.NewUniform(c), Face: face}
	w := d.MeasureString(text).Round()
	d.Dot = fixed.P((Width-w)/2, baseline)
	d.DrawString(text)
}

// wrap splits text into lines no wider than maxWidth pixels.
func wrap(face font.Face, text string, maxWidth int) []string {
	var (
		lines   []string
		current string
	)
	for _, word := range strings.Fields(text) {
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if current != "" && font.MeasureString(face, candidate).Round() > maxWidth {
			lines = append(lines, current)
			current = word
			continue
		}
		current = candidate
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

// placeToken scales token to fit dst, keeping its aspect ratio.
func placeToken(img *image.RGBA, token image.Image, dst image.Rectangle) {
	src := token.Bounds()
	if src.Dx() == 0 || src.Dy() == 0 {
		return
	}
	scale := math.Min(float64(dst.Dx())/float64(src.Dx()), float64(dst.Dy())/float64(src.Dy()))
	w := int(float64(src.Dx()) * scale)
	h := int(float64(src.Dy()) * scale)
	off := image.Pt(dst.Min.X+(dst.Dx()-w)/2, dst.Min.Y+(dst.Dy()-h)/2)
	xdraw.CatmullRom.Scale(img, image.Rect(off.X, off.Y, off.X+w, off.Y+h), token, src, xdraw.Over, nil)
}

func drawSeal(img *image.RGBA, face font.Face, center image.Point, radius int) {
	r2 := radius * radius
	inner := (radius - 8) * (radius - 8)
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			d := x*x + y*y
			switch {
			case d <= inner:
				img.Set(center.X+x, center.Y+y, sealRed)
			case d <= r2:
				img.Set(center.X+x, center.Y+y, gold)
			}
		}
	}
	d := &font.Drawer{Dst: img, Src: image.NewUniform(gold), Face: face}
	for i, word := range []string{"PORTAL", "SEAL"} {
		w := d.MeasureString(word).Round()
		d.Dot = fixed.P(center.X-w/2, center.Y-4+i*26)
		d.DrawString(word)
	}
}
