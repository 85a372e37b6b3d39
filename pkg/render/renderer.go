// Package render overlays classification results on a copy of the source image.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/menta2k/helmet-inspector/pkg/types"
)

// Style controls how each classification is drawn
type Style struct {
	Unprotected color.NRGBA
	Protected   color.NRGBA
	Text        color.NRGBA
	// Stroke is the box line width in pixels; 0 scales it with the image size
	Stroke int
}

// DefaultStyle draws unprotected heads in red and protected heads in green
func DefaultStyle() Style {
	return Style{
		Unprotected: color.NRGBA{255, 0, 0, 255},
		Protected:   color.NRGBA{0, 200, 0, 255},
		Text:        color.NRGBA{255, 255, 255, 255},
	}
}

// Renderer draws boxes and confidence labels
type Renderer struct {
	style Style
	face  font.Face
}

// New creates a renderer with the default style
func New() *Renderer {
	return NewWithStyle(DefaultStyle())
}

// NewWithStyle creates a renderer with a custom style
func NewWithStyle(style Style) *Renderer {
	return &Renderer{style: style, face: basicfont.Face7x13}
}

// Label returns the caption drawn next to a person box
func Label(p types.PersonCandidate) string {
	if p.Status == types.Protected {
		return fmt.Sprintf("HELMET %.2f", p.Confidence)
	}
	return fmt.Sprintf("NO HELMET %.2f", p.Confidence)
}

// Render returns an annotated copy of img. The source image is not modified.
func (r *Renderer) Render(img image.Image, res types.ClassifiedResult) *image.NRGBA {
	out := imaging.Clone(img)
	w, h := out.Bounds().Dx(), out.Bounds().Dy()

	stroke := r.style.Stroke
	if stroke <= 0 {
		stroke = int(math.Max(2, 0.004*float64(minInt(w, h))))
	}

	for _, p := range res.Unprotected {
		r.drawPerson(out, p, r.style.Unprotected, stroke)
	}
	for _, p := range res.Protected {
		r.drawPerson(out, p, r.style.Protected, stroke)
	}
	return out
}

func (r *Renderer) drawPerson(img *image.NRGBA, p types.PersonCandidate, c color.NRGBA, stroke int) {
	rect := p.Box.Rect()
	drawBox(img, rect, c, stroke)
	r.drawLabel(img, rect, Label(p), c)
}

// drawLabel places a filled caption above the box, or inside it when the
// box touches the top edge.
func (r *Renderer) drawLabel(img *image.NRGBA, box image.Rectangle, text string, bg color.NRGBA) {
	metrics := r.face.Metrics()
	textW := font.MeasureString(r.face, text).Ceil()
	textH := (metrics.Ascent + metrics.Descent).Ceil()
	pad := 2

	top := box.Min.Y - textH - 2*pad
	if top < 0 {
		top = box.Min.Y
	}
	bgRect := image.Rect(box.Min.X, top, box.Min.X+textW+2*pad, top+textH+2*pad).Intersect(img.Bounds())
	if bgRect.Empty() {
		return
	}
	draw.Draw(img, bgRect, image.NewUniform(bg), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(r.style.Text),
		Face: r.face,
		Dot:  fixed.P(box.Min.X+pad, top+pad+metrics.Ascent.Ceil()),
	}
	d.DrawString(text)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func drawBox(img *image.NRGBA, rect image.Rectangle, c color.NRGBA, stroke int) {
	x0, y0, x1, y1 := rect.Min.X, rect.Min.Y, rect.Max.X, rect.Max.Y
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
