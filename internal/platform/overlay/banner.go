// Package overlay renders the caption banner composited onto every short:
// a transparent frame-sized PNG with the tagline boxed at the top, the
// branding line at the bottom and an optional colour emoji.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"strings"

	_ "image/png"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
)

const (
	topFontSize    = 48
	bottomFontSize = 40
	maxLineChars   = 28
	emojiSize      = 48
)

type Banner struct {
	Width     int
	Height    int
	Top       string
	Bottom    string
	EmojiPath string
}

// Renderer draws banners with one font at two sizes. Without a font file it
// falls back to gg's built-in bitmap face.
type Renderer struct {
	top    font.Face
	bottom font.Face
}

func NewRenderer(fontPath string) (*Renderer, error) {
	if strings.TrimSpace(fontPath) == "" {
		return &Renderer{}, nil
	}
	raw, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("read font file: %w", err)
	}
	parsed, err := truetype.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse TTF: %w", err)
	}
	face := func(size float64) font.Face {
		return truetype.NewFace(parsed, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingNone})
	}
	return &Renderer{top: face(topFontSize), bottom: face(bottomFontSize)}, nil
}

// SplitTwoLines fills the first line up to maxChars bytes of whole words and
// puts everything else on the second.
func SplitTwoLines(text string, maxChars int) (string, string) {
	var line1, line2 []string
	n := 0
	for _, w := range strings.Fields(text) {
		if len(line2) == 0 {
			next := n + len(w)
			if len(line1) > 0 {
				next++
			}
			if next <= maxChars || len(line1) == 0 {
				line1 = append(line1, w)
				n = next
				continue
			}
		}
		line2 = append(line2, w)
	}
	return strings.Join(line1, " "), strings.Join(line2, " ")
}

// Render writes the banner PNG to dest.
func (r *Renderer) Render(b Banner, dest string) error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("banner size %dx%d", b.Width, b.Height)
	}
	dc := gg.NewContext(b.Width, b.Height)
	dc.SetColor(color.Transparent)
	dc.Clear()

	if top := strings.TrimSpace(b.Top); top != "" {
		if r.top != nil {
			dc.SetFontFace(r.top)
		}
		line1, line2 := SplitTwoLines(top, maxLineChars)
		emoji := loadEmoji(b.EmojiPath)
		lines := []string{line1}
		if line2 != "" {
			lines = append(lines, line2)
		}
		for i, line := range lines {
			withEmoji := emoji != nil && i == len(lines)-1
			drawBoxed(dc, line, float64(b.Width)/2, float64(70+70*i), 18, color.NRGBA{255, 255, 255, 242}, withEmoji)
			if withEmoji {
				tw, th := dc.MeasureString(line)
				x := int(float64(b.Width)/2+tw/2) + 4
				y := 70 + 70*i + int(th/2) - emojiSize/2
				dc.DrawImage(emoji, x, y)
			}
		}
	}
	if bottom := strings.TrimSpace(b.Bottom); bottom != "" {
		if r.bottom != nil {
			dc.SetFontFace(r.bottom)
		}
		drawBoxed(dc, bottom, float64(b.Width)/2, float64(b.Height-120), 12, color.NRGBA{255, 255, 255, 230}, false)
	}
	if err := dc.SavePNG(dest); err != nil {
		return fmt.Errorf("encode banner: %w", err)
	}
	return nil
}

// drawBoxed centres text horizontally at cx with its box top at y.
func drawBoxed(dc *gg.Context, text string, cx, y, pad float64, box color.Color, reserveEmoji bool) {
	tw, th := dc.MeasureString(text)
	w := tw
	if reserveEmoji {
		w += emojiSize + 8
	}
	dc.SetColor(box)
	dc.DrawRectangle(cx-tw/2-pad, y-pad, w+2*pad, th+2*pad)
	dc.Fill()
	dc.SetColor(color.Black)
	dc.DrawStringAnchored(text, cx, y+th/2, 0.5, 0.5)
}

func loadEmoji(path string) image.Image {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	src, _, err := image.Decode(f)
	if err != nil {
		return nil
	}
	dst := image.NewNRGBA(image.Rect(0, 0, emojiSize, emojiSize))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}
