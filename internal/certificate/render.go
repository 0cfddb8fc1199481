package certificate

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	canvasWidth  = 1600
	canvasHeight = 1130
)

var (
	inkColor    = color.RGBA{R: 0x1f, G: 0x29, B: 0x37, A: 0xff}
	accentColor = color.RGBA{R: 0x1a, G: 0x73, B: 0xe8, A: 0xff}
	paperColor  = color.RGBA{R: 0xfd, G: 0xfc, B: 0xf7, A: 0xff}
)

// RendererOptions configures a Renderer.
type RendererOptions struct {
	// TemplatePath is an optional PNG background, scaled to the canvas.
	TemplatePath string
	Heading      string
	Body         string
}

// Renderer draws certificates as PNG images. Output depends only on the name.
type Renderer struct {
	background *image.RGBA
	heading    string
	body       string

	mu          sync.Mutex
	headingFace font.Face
	nameFace    font.Face
	bodyFace    font.Face
}

// NewRenderer loads fonts and the optional template.
func NewRenderer(opts RendererOptions) (*Renderer, error) {
	if opts.Heading == "" {
		opts.Heading = "CERTIFICATE OF COMPLETION"
	}
	if opts.Body == "" {
		opts.Body = "has visited every Learning Station"
	}
	bg, err := loadBackground(opts.TemplatePath)
	if err != nil {
		return nil, err
	}
	headingFace, err := newFace(gobold.TTF, 64)
	if err != nil {
		return nil, err
	}
	nameFace, err := newFace(gobold.TTF, 96)
	if err != nil {
		return nil, err
	}
	bodyFace, err := newFace(goitalic.TTF, 40)
	if err != nil {
		return nil, err
	}
	return &Renderer{
		background:  bg,
		heading:     opts.Heading,
		body:        opts.Body,
		headingFace: headingFace,
		nameFace:    nameFace,
		bodyFace:    bodyFace,
	}, nil
}

// Render draws the certificate for an already shortened display name.
func (r *Renderer) Render(displayName string) ([]byte, error) {
	img := image.NewRGBA(r.background.Bounds())
	draw.Draw(img, img.Bounds(), r.background, image.Point{}, draw.Src)

	r.mu.Lock()
	r.centered(img, r.headingFace, accentColor, r.heading, 330)
	r.centered(img, r.bodyFace, inkColor, "This certifies that", 450)
	r.centered(img, r.nameFace, inkColor, displayName, 600)
	r.centered(img, r.bodyFace, inkColor, r.body, 720)
	r.mu.Unlock()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode certificate: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) centered(dst draw.Image, face font.Face, c color.Color, text string, baseline int) {
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(c), Face: face}
	width := d.MeasureString(text).Ceil()
	x := (dst.Bounds().Dx() - width) / 2
	d.Dot = fixed.P(x, baseline)
	d.DrawString(text)
}

func newFace(ttf []byte, size float64) (font.Face, error) {
	f, err := opentype.Parse(ttf)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("font face: %w", err)
	}
	return face, nil
}

func loadBackground(path string) (*image.RGBA, error) {
	canvas := image.NewRGBA(image.Rect(0, 0, canvasWidth, canvasHeight))
	if path == "" {
		drawDefaultBackground(canvas)
		return canvas, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open certificate template: %w", err)
	}
	defer f.Close()
	src, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode certificate template: %w", err)
	}
	draw.CatmullRom.Scale(canvas, canvas.Bounds(), src, src.Bounds(), draw.Src, nil)
	return canvas, nil
}

func drawDefaultBackground(canvas *image.RGBA) {
	b := canvas.Bounds()
	draw.Draw(canvas, b, image.NewUniform(paperColor), image.Point{}, draw.Src)
	accent := image.NewUniform(accentColor)
	for _, inset := range []int{40, 56} {
		thickness := 10
		if inset == 56 {
			thickness = 3
		}
		outer := b.Inset(inset)
		inner := outer.Inset(thickness)
		for _, side := range []image.Rectangle{
			image.Rect(outer.Min.X, outer.Min.Y, outer.Max.X, inner.Min.Y),
			image.Rect(outer.Min.X, inner.Max.Y, outer.Max.X, outer.Max.Y),
			image.Rect(outer.Min.X, inner.Min.Y, inner.Min.X, inner.Max.Y),
			image.Rect(inner.Max.X, inner.Min.Y, outer.Max.X, inner.Max.Y),
		} {
			draw.Draw(canvas, side, accent, image.Point{}, draw.Src)
		}
	}
}
