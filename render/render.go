// Package render draws rule violations onto rasterized page images.
//
// Error boxes are in PDF points (72 per inch, top-left origin). Page images
// are assumed to be rendered at the Renderer's DPI, so every coordinate is
// multiplied by dpi/72 before drawing. The source image is never modified.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/workwise/aikor/model"
	"github.com/workwise/aikor/rules"
)

// DefaultDPI is the resolution page images are usually rendered at.
const DefaultDPI = 150

const (
	strokeWidth = 3
	badgeRadius = 11
	badgeGap    = 6
	lineWidth   = 2
)

// ErrNoImage is returned when a page has no source image to draw on.
var ErrNoImage = errors.New("render: page has no image")

var (
	colorError   = color.RGBA{255, 0, 0, 255}
	colorWarning = color.RGBA{255, 165, 0, 255}
	colorInfo    = color.RGBA{0, 100, 255, 255}
	colorLabel   = color.RGBA{255, 255, 255, 255}
)

// SeverityColor returns the overlay color of a severity. Unknown
// severities are drawn as warnings.
func SeverityColor(s rules.Severity) color.RGBA {
	switch s {
	case rules.SeverityError:
		return colorError
	case rules.SeverityInfo:
		return colorInfo
	default:
		return colorWarning
	}
}

// Mark is one numbered error to draw. Marks without a box are skipped.
type Mark struct {
	Number   int
	Severity rules.Severity
	BBox     *model.BBox
}

// MarksFromErrors converts numbered engine errors into marks.
func MarksFromErrors(errs []rules.NumberedError) []Mark {
	out := make([]Mark, 0, len(errs))
	for _, e := range errs {
		out = append(out, Mark{Number: e.Number, Severity: e.Severity, BBox: e.BBox})
	}
	return out
}

// Renderer overlays error marks at a fixed image resolution.
type Renderer struct {
	dpi   float64
	scale float64
}

// New returns a Renderer for images rendered at dpi. dpi <= 0 uses
// DefaultDPI.
func New(dpi int) *Renderer {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &Renderer{dpi: float64(dpi), scale: float64(dpi) / 72}
}

func (r *Renderer) DPI() float64 { return r.dpi }

// Scale is the factor from PDF points to image pixels.
func (r *Renderer) Scale() float64 { return r.scale }

// Draw returns a copy of img with marks drawn on it, and the number of
// marks that were drawn.
func (r *Renderer) Draw(img image.Image, marks []Mark) (*image.RGBA, int) {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)

	drawn := 0
	for _, m := range marks {
		if m.BBox == nil {
			continue
		}
		box, ok := r.pixelBox(*m.BBox, b)
		if !ok {
			slog.Debug("render: skipping mark with bad geometry", "number", m.Number, "bbox", *m.BBox)
			continue
		}
		c := SeverityColor(m.Severity)
		drawFrame(dst, box, c)
		drawBadge(dst, box, c, strconv.Itoa(m.Number))
		drawn++
	}
	return dst, drawn
}

func (r *Renderer) pixelBox(bb model.BBox, bounds image.Rectangle) (image.Rectangle, bool) {
	for _, v := range []float64{bb.X0, bb.Y0, bb.X1, bb.Y1} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return image.Rectangle{}, false
		}
	}
	if !bb.Valid() {
		return image.Rectangle{}, false
	}
	s := bb.Scale(r.scale)
	box := image.Rect(
		bounds.Min.X+int(math.Round(s.X0)), bounds.Min.Y+int(math.Round(s.Y0)),
		bounds.Min.X+int(math.Round(s.X1)), bounds.Min.Y+int(math.Round(s.Y1)),
	)
	if box.Min.X > bounds.Max.X || box.Max.X < bounds.Min.X ||
		box.Min.Y > bounds.Max.Y || box.Max.Y < bounds.Min.Y {
		return image.Rectangle{}, false
	}
	return box, true
}

// drawFrame strokes the box outline, growing outward.
func drawFrame(dst *image.RGBA, box image.Rectangle, c color.RGBA) {
	for i := 0; i < strokeWidth; i++ {
		x0, y0, x1, y1 := box.Min.X-i, box.Min.Y-i, box.Max.X+i, box.Max.Y+i
		for x := x0; x <= x1; x++ {
			dst.SetRGBA(x, y0, c)
			dst.SetRGBA(x, y1, c)
		}
		for y := y0; y <= y1; y++ {
			dst.SetRGBA(x0, y, c)
			dst.SetRGBA(x1, y, c)
		}
	}
}

// drawBadge places a numbered disc up and to the left of the box, kept
// inside the image, and joins it to the box corner with a line.
func drawBadge(dst *image.RGBA, box image.Rectangle, c color.RGBA, label string) {
	b := dst.Bounds()
	cx := box.Min.X - badgeRadius - badgeGap
	cy := box.Min.Y - badgeRadius - badgeGap
	cx = clamp(cx, b.Min.X+badgeRadius, b.Max.X-badgeRadius-1)
	cy = clamp(cy, b.Min.Y+badgeRadius, b.Max.Y-badgeRadius-1)

	drawLine(dst, cx, cy, box.Min.X, box.Min.Y, c)

	r2 := badgeRadius * badgeRadius
	for dy := -badgeRadius; dy <= badgeRadius; dy++ {
		for dx := -badgeRadius; dx <= badgeRadius; dx++ {
			if dx*dx+dy*dy <= r2 {
				dst.SetRGBA(cx+dx, cy+dy, c)
			}
		}
	}

	face := basicfont.Face7x13
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(colorLabel), Face: face}
	w := d.MeasureString(label).Round()
	m := face.Metrics()
	baseline := cy + (m.Ascent.Round()-m.Descent.Round())/2
	d.Dot = fixed.P(cx-w/2, baseline)
	d.DrawString(label)
}

// drawLine is Bresenham with a square pen of lineWidth pixels.
func drawLine(dst *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		for py := 0; py < lineWidth; py++ {
			for px := 0; px < lineWidth; px++ {
				dst.SetRGBA(x0+px, y0+py, c)
			}
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// DefaultOutputPath places the rendered copy of a page image in an
// "errors" directory next to the image's directory:
// <dir>/pages/p1.png -> <dir>/errors/errors_p1.png.
func DefaultOutputPath(imagePath string) string {
	pagesDir := filepath.Dir(imagePath)
	return filepath.Join(filepath.Dir(pagesDir), "errors", "errors_"+filepath.Base(imagePath))
}

// RenderPage draws marks onto the image at imagePath and writes the result
// to outputPath, or to DefaultOutputPath when outputPath is empty. The
// returned path is the written file.
func (r *Renderer) RenderPage(imagePath string, marks []Mark, outputPath string) (string, error) {
	if imagePath == "" {
		return "", ErrNoImage
	}
	img, err := decodeFile(imagePath)
	if err != nil {
		return "", err
	}
	if outputPath == "" {
		outputPath = DefaultOutputPath(imagePath)
	}
	out, drawn := r.Draw(img, marks)
	if err := encodeFile(outputPath, out); err != nil {
		return "", err
	}
	slog.Debug("render: page written", "source", imagePath, "output", outputPath, "marks", drawn)
	return outputPath, nil
}

// Page is one page image with the marks that belong on it.
type Page struct {
	Number    int
	ImagePath string
	Marks     []Mark
}

// PageResult reports where a page's image ended up. Path is the original
// image when the page had no errors or rendering failed.
type PageResult struct {
	Number   int    `json:"page_number"`
	Path     string `json:"path"`
	Rendered bool   `json:"rendered"`
	Err      error  `json:"-"`
}

// RenderAll renders every page that has marks. A page that cannot be
// rendered keeps its original image; the failure is logged and returned in
// its PageResult.
func (r *Renderer) RenderAll(ctx context.Context, pages []Page) []PageResult {
	out := make([]PageResult, 0, len(pages))
	for _, p := range pages {
		res := PageResult{Number: p.Number, Path: p.ImagePath}
		switch {
		case ctx.Err() != nil:
			res.Err = ctx.Err()
		case len(p.Marks) == 0:
		default:
			path, err := r.RenderPage(p.ImagePath, p.Marks, "")
			if err != nil {
				slog.Warn("render: keeping original page image", "page", p.Number, "image", p.ImagePath, "error", err)
				res.Err = err
			} else {
				res.Path, res.Rendered = path, true
			}
		}
		out = append(out, res)
	}
	return out
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("render: opening %s: %w", path, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("render: decoding %s: %w", path, err)
	}
	return img, nil
}

func encodeFile(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("render: creating %s: %w", filepath.Dir(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".render-*")
	if err != nil {
		return fmt.Errorf("render: writing %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(tmp, img, &jpeg.Options{Quality: 90})
	default:
		err = png.Encode(tmp, img)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("render: encoding %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("render: writing %s: %w", path, err)
	}
	return nil
}
