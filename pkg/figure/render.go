package figure

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/go-pdf/fpdf"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/menta2k/plate-processor/pkg/analyzer"
)

// Orientation chooses which axis carries the strains
type Orientation string

const (
	// Vertical puts strains on rows and substrates on columns
	Vertical   Orientation = "vertical"
	Horizontal Orientation = "horizontal"
)

const (
	DefaultCellSize = 256
	placeholderText = "No image"
)

// ParseOrientation accepts vertical or horizontal in any case
func ParseOrientation(s string) (Orientation, error) {
	switch o := Orientation(strings.ToLower(strings.TrimSpace(s))); o {
	case Vertical, Horizontal:
		return o, nil
	default:
		return "", fmt.Errorf("orientation must be vertical or horizontal, got %q", s)
	}
}

// Options selects what goes into a figure
type Options struct {
	Strains     []string
	Substrates  []string
	Timepoint   string
	Orientation Orientation
	CellSize    int
}

// Renderer draws catalog selections to an image
type Renderer struct {
	analyzer *analyzer.ImageAnalyzer
	face     font.Face
}

func NewRenderer() *Renderer {
	return &Renderer{analyzer: analyzer.New(), face: basicfont.Face7x13}
}

// Render builds the grid. Cells whose image is missing or unreadable show a placeholder.
func (r *Renderer) Render(c *Catalog, opts Options) (*image.NRGBA, error) {
	if len(opts.Strains) == 0 || len(opts.Substrates) == 0 {
		return nil, errors.New("select at least one strain and one substrate")
	}
	if opts.Timepoint == "" {
		return nil, errors.New("timepoint is required")
	}
	if opts.Orientation == "" {
		opts.Orientation = Vertical
	}
	if _, err := ParseOrientation(string(opts.Orientation)); err != nil {
		return nil, err
	}
	cell := opts.CellSize
	if cell <= 0 {
		cell = DefaultCellSize
	}

	rows, cols := opts.Strains, opts.Substrates
	if opts.Orientation == Horizontal {
		rows, cols = opts.Substrates, opts.Strains
	}

	lineHeight := r.face.Metrics().Height.Ceil()
	header := lineHeight * 2
	gutter := r.widest(rows) + lineHeight

	canvas := imaging.New(gutter+len(cols)*cell, header+len(rows)*cell, color.White)

	for j, col := range cols {
		r.drawCentered(canvas, col, gutter+j*cell+cell/2, header/2)
	}
	for i, row := range rows {
		r.drawText(canvas, row, lineHeight/2, header+i*cell+cell/2)

		for j, col := range cols {
			strain, substrate := row, col
			if opts.Orientation == Horizontal {
				strain, substrate = col, row
			}
			origin := image.Pt(gutter+j*cell, header+i*cell)
			r.drawCell(canvas, c, Key{strain, substrate, opts.Timepoint}, origin, cell)
		}
	}
	return canvas, nil
}

func (r *Renderer) drawCell(canvas *image.NRGBA, c *Catalog, key Key, origin image.Point, cell int) {
	path, ok := c.Images[key]
	if ok {
		if img, err := r.analyzer.LoadImage(path); err == nil {
			fitted := imaging.Fit(img, cell, cell, imaging.Lanczos)
			b := fitted.Bounds()
			at := origin.Add(image.Pt((cell-b.Dx())/2, (cell-b.Dy())/2))
			// Masked corners are transparent; composite over the white canvas
			draw.Draw(canvas, image.Rectangle{Min: at, Max: at.Add(b.Size())}, fitted, b.Min, draw.Over)
			return
		}
	}
	r.drawCentered(canvas, placeholderText, origin.X+cell/2, origin.Y+cell/2)
}

func (r *Renderer) widest(labels []string) int {
	d := &font.Drawer{Face: r.face}
	w := 0
	for _, s := range labels {
		w = max(w, d.MeasureString(s).Ceil())
	}
	return w
}

// drawText writes s with its left edge at x, vertically centered on y
func (r *Renderer) drawText(dst draw.Image, s string, x, y int) {
	m := r.face.Metrics()
	baseline := y + (m.Ascent.Ceil()-m.Descent.Ceil())/2
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.Black),
		Face: r.face,
		Dot:  fixed.P(x, baseline),
	}
	d.DrawString(s)
}

func (r *Renderer) drawCentered(dst draw.Image, s string, cx, cy int) {
	d := &font.Drawer{Face: r.face}
	r.drawText(dst, s, cx-d.MeasureString(s).Ceil()/2, cy)
}

// Save writes the figure. The format follows the extension: pdf, or anything the image encoder accepts.
func (r *Renderer) Save(img image.Image, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return savePDF(img, path)
	}
	return r.analyzer.SaveImage(img, path)
}

// savePDF places img on a single page of exactly its size, one point per pixel
func savePDF(img image.Image, path string) error {
	tmp, err := os.CreateTemp("", "figure-*.png")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	tmp.Close()
	if err := imaging.Save(img, tmp.Name()); err != nil {
		return fmt.Errorf("failed to encode figure: %w", err)
	}

	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())

	// Portrait keeps Wd and Ht as given; landscape would swap them
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: w, Ht: h},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	pdf.ImageOptions(tmp.Name(), 0, 0, w, h, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("failed to write pdf: %w", err)
	}
	return nil
}
