package sentiment

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"stock-forecaster/internal/types"
)

const (
	chartWidth  = 640
	chartHeight = 400
	marginLeft  = 60
	marginRight = 20
	marginTop   = 40
	marginBot   = 50
)

var barColors = map[types.Label]color.RGBA{
	types.LabelPositive: {R: 0x2e, G: 0x9e, B: 0x44, A: 0xff},
	types.LabelNeutral:  {R: 0x9e, G: 0x9e, B: 0x9e, A: 0xff},
	types.LabelNegative: {R: 0xd6, G: 0x3a, B: 0x3a, A: 0xff},
}

// RenderChart draws a bar chart of label counts as PNG.
func RenderChart(title string, s types.SentimentSummary) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, chartWidth, chartHeight))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	plotW := chartWidth - marginLeft - marginRight
	plotH := chartHeight - marginTop - marginBot
	baseY := marginTop + plotH

	axis := color.RGBA{A: 0xff}
	fillRect(img, marginLeft, marginTop, marginLeft+1, baseY, axis)
	fillRect(img, marginLeft, baseY, marginLeft+plotW, baseY+1, axis)

	maxCount := 1
	for _, l := range types.Labels {
		if c := s.Count(l); c > maxCount {
			maxCount = c
		}
	}

	slot := plotW / len(types.Labels)
	barW := slot / 2
	for i, l := range types.Labels {
		c := s.Count(l)
		h := c * (plotH - 20) / maxCount
		x0 := marginLeft + i*slot + (slot-barW)/2
		fillRect(img, x0, baseY-h, x0+barW, baseY, barColors[l])

		drawCentered(img, strconv.Itoa(c), x0+barW/2, baseY-h-6)
		drawCentered(img, string(l), x0+barW/2, baseY+18)
	}

	drawCentered(img, title, chartWidth/2, marginTop-16)
	drawCentered(img, "Sentiment", marginLeft+plotW/2, chartHeight-12)
	drawText(img, "Articles", 4, marginTop+plotH/2)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode chart: %w", err)
	}
	return buf.Bytes(), nil
}

func fillRect(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	draw.Draw(img, image.Rect(x0, y0, x1, y1), image.NewUniform(c), image.Point{}, draw.Src)
}

func drawText(img *image.RGBA, s string, x, y int) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func drawCentered(img *image.RGBA, s string, cx, y int) {
	w := font.MeasureString(basicfont.Face7x13, s).Round()
	drawText(img, s, cx-w/2, y)
}
