// Package puzzle renders distorted text images for use as captcha
// challenges.
package puzzle

import (
	"crypto/rand"
	"image"
	"image/color"
	"io"
	"math"
	"math/big"
	mrand "math/rand"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/xerrors"
)

// Generator renders text puzzles. It implements captcha.Challenger and is
// safe for concurrent use.
type Generator struct {
	cfg       Config
	font      *truetype.Font
	textColor color.NRGBA

	// Source of answer characters. Answers must be unpredictable so this is
	// always crypto/rand outside of tests.
	entropy io.Reader
}

// NewGenerator returns a Generator for the specified config.
func NewGenerator(cfg Config) (*Generator, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("puzzle generator: config validation failed: %w", err)
	}

	font, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return nil, xerrors.Errorf("puzzle generator: load font: %w", err)
	}
	textColor, _ := parseHexColor(cfg.TextColor)

	return &Generator{
		cfg:       cfg,
		font:      font,
		textColor: textColor,
		entropy:   rand.Reader,
	}, nil
}

// Challenge implements captcha.Challenger. If no answer could be drawn from
// the entropy source it returns a nil image.
func (g *Generator) Challenge() (image.Image, string) {
	answer, err := g.answer()
	if err != nil {
		return nil, ""
	}

	rng := mrand.New(mrand.NewSource(time.Now().UnixNano()))
	dc := gg.NewContext(g.cfg.Width, g.cfg.Height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	g.drawText(dc, rng, answer)
	g.drawDots(dc, rng)

	img := dc.Image().(*image.RGBA)
	if g.cfg.WaveAmplitude > 0 && g.cfg.WaveFrequency > 0 {
		img = wave(img, g.cfg.WaveFrequency, g.cfg.WaveAmplitude)
	}
	if g.cfg.Noise > 0 {
		noise(img, rng, g.cfg.Noise)
	}
	g.drawGrid(gg.NewContextForRGBA(img))

	return img, answer
}

func (g *Generator) answer() (string, error) {
	alphabetLen := big.NewInt(int64(len(g.cfg.Alphabet)))
	out := make([]byte, g.cfg.Chars)
	for i := range out {
		n, err := rand.Int(g.entropy, alphabetLen)
		if err != nil {
			return "", err
		}
		out[i] = g.cfg.Alphabet[n.Int64()]
	}
	return string(out), nil
}

func (g *Generator) drawText(dc *gg.Context, rng *mrand.Rand, answer string) {
	if len(answer) == 0 {
		return
	}

	w, h := float64(g.cfg.Width), float64(g.cfg.Height)
	slot := w / float64(len(answer)+1)
	size := math.Min(h*0.6, slot*1.4)

	dc.SetFontFace(truetype.NewFace(g.font, &truetype.Options{Size: size}))
	dc.SetColor(g.textColor)
	for i := 0; i < len(answer); i++ {
		x := slot*float64(i+1) + (rng.Float64()-0.5)*slot*0.3
		y := h/2 + (rng.Float64()-0.5)*h*0.2
		angle := (rng.Float64() - 0.5) * 0.6

		dc.Push()
		dc.RotateAbout(angle, x, y)
		dc.DrawStringAnchored(answer[i:i+1], x, y, 0.5, 0.35)
		dc.Pop()
	}
}

func (g *Generator) drawDots(dc *gg.Context, rng *mrand.Rand) {
	w, h := float64(g.cfg.Width), float64(g.cfg.Height)
	radius := math.Max(2, h/30)

	dc.SetColor(g.textColor)
	for i := 0; i < g.cfg.Dots; i++ {
		dc.DrawCircle(rng.Float64()*w, rng.Float64()*h, radius*(0.5+rng.Float64()))
		dc.Fill()
	}
}

func (g *Generator) drawGrid(dc *gg.Context) {
	w, h := float64(g.cfg.Width), float64(g.cfg.Height)

	dc.SetRGBA(float64(g.textColor.R)/255, float64(g.textColor.G)/255, float64(g.textColor.B)/255, 0.5)
	dc.SetLineWidth(1)
	if g.cfg.GridX > 0 {
		for x := float64(g.cfg.GridX); x < w; x += float64(g.cfg.GridX) {
			dc.DrawLine(x, 0, x, h)
		}
	}
	if g.cfg.GridY > 0 {
		for y := float64(g.cfg.GridY); y < h; y += float64(g.cfg.GridY) {
			dc.DrawLine(0, y, w, y)
		}
	}
	dc.Stroke()
}

// wave shifts every column of src vertically along a sine curve. Pixels
// shifted in from outside the image are white.
func wave(src *image.RGBA, freq, amp float64) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	white := color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

	for x := b.Min.X; x < b.Max.X; x++ {
		phase := 2 * math.Pi * freq * float64(x-b.Min.X) / float64(b.Dx())
		dy := int(math.Round(amp * math.Sin(phase)))
		for y := b.Min.Y; y < b.Max.Y; y++ {
			if sy := y - dy; sy >= b.Min.Y && sy < b.Max.Y {
				dst.SetRGBA(x, y, src.RGBAAt(x, sy))
			} else {
				dst.SetRGBA(x, y, white)
			}
		}
	}
	return dst
}

// noise replaces each pixel of img with a random grey with probability p.
func noise(img *image.RGBA, rng *mrand.Rand, p float64) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if rng.Float64() >= p {
				continue
			}
			v := uint8(rng.Intn(256))
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 0xff})
		}
	}
}
