package report

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/terra-clan/koi-prep/internal/models"
)

// Raster geometry in pixels. The width is A4 at 150 dpi.
const (
	rasterWidth = 1240
	margin      = 80
	barHeight   = 22
)

// Report palette, dark theme as in the browser
var (
	colorBackground = color.RGBA{0x0f, 0x17, 0x2a, 0xff}
	colorText       = color.RGBA{0xe2, 0xe8, 0xf0, 0xff}
	colorMuted      = color.RGBA{0x94, 0xa3, 0xb8, 0xff}
	colorTitle      = color.RGBA{0xff, 0xff, 0xff, 0xff}
	colorAccent     = color.RGBA{0x60, 0xa5, 0xfa, 0xff}
	colorBar        = color.RGBA{0x63, 0x66, 0xf1, 0xff}
	colorTrack      = color.RGBA{0x33, 0x41, 0x55, 0xff}
	colorStrength   = color.RGBA{0x34, 0xd3, 0x99, 0xff}
	colorWeakness   = color.RGBA{0xfb, 0xbf, 0x24, 0xff}
)

// Rasterizer draws the report into an image
type Rasterizer struct {
	face font.Face
}

// NewRasterizer creates a rasterizer with the given face. A nil face uses
// the built-in fixed font, which only covers Latin text; other runes are
// drawn as the replacement glyph.
func NewRasterizer(face font.Face) *Rasterizer {
	if face == nil {
		face = basicfont.Face7x13
	}
	return &Rasterizer{face: face}
}

// LoadFace reads a TrueType or OpenType font for reports in Korean
func LoadFace(path string, size float64) (font.Face, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read font: %w", err)
	}

	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font %s: %w", path, err)
	}

	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     150,
		Hinting: font.HintingFull,
	})
}

// canvas accumulates draw operations top to bottom. Drawing happens in two
// passes: the first only measures the height.
type canvas struct {
	r    *Rasterizer
	img  *image.RGBA
	y    int
	line int
}

func (c *canvas) text(s string, x int, col color.Color) {
	if c.img != nil {
		d := &font.Drawer{
			Dst:  c.img,
			Src:  image.NewUniform(col),
			Face: c.r.face,
			Dot:  fixed.P(x, c.y+c.r.face.Metrics().Ascent.Ceil()),
		}
		d.DrawString(s)
	}
	c.y += c.line
}

// paragraph wraps s to the content width
func (c *canvas) paragraph(s string, indent int, col color.Color) {
	for _, line := range c.r.wrap(s, rasterWidth-2*margin-indent) {
		c.text(line, margin+indent, col)
	}
}

func (c *canvas) gap(n int) {
	c.y += n
}

func (c *canvas) rect(x0, y0, x1, y1 int, col color.Color) {
	if c.img != nil {
		draw.Draw(c.img, image.Rect(x0, y0, x1, y1), image.NewUniform(col), image.Point{}, draw.Src)
	}
}

// Rasterize draws the report
func (r *Rasterizer) Rasterize(rep *models.ReportResponse) *image.RGBA {
	measure := &canvas{r: r, line: r.lineHeight()}
	r.layout(measure, rep)

	height := measure.y + margin
	img := image.NewRGBA(image.Rect(0, 0, rasterWidth, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(colorBackground), image.Point{}, draw.Src)

	r.layout(&canvas{r: r, img: img, line: r.lineHeight()}, rep)
	return img
}

func (r *Rasterizer) layout(c *canvas, rep *models.ReportResponse) {
	a := rep.Analysis
	if a == nil {
		a = &models.AnalysisResult{}
	}

	c.y = margin
	c.text("Provided by "+Provider, margin, colorAccent)
	c.gap(c.line / 2)
	c.paragraph(rep.UserName+"님의 종합 평가 리포트", 0, colorTitle)
	c.text(Provider+" Agent가 분석한 코딩 실력 진단 결과입니다.", margin, colorMuted)
	c.gap(c.line)

	top := c.y
	c.gap(c.line / 2)
	c.text("TOTAL SCORE", margin+24, colorMuted)
	c.text(formatScore(a.TotalScore)+" / 100", margin+24, colorTitle)
	c.text("Estimated Rank: "+a.RankEstimate, margin+24, colorAccent)
	c.gap(c.line / 2)
	c.rect(margin, top, margin+8, c.y, colorBar)
	c.gap(c.line)

	c.text("영역별 분석", margin, colorTitle)
	trackStart := margin + 120
	trackEnd := rasterWidth - margin - 100
	for _, ls := range a.LevelScores {
		y := c.y
		c.rect(trackStart, y, trackEnd, y+barHeight, colorTrack)
		c.rect(trackStart, y, trackStart+(trackEnd-trackStart)*barWidth(ls.Score)/100, y+barHeight, colorBar)
		label := c.y
		c.text(ls.Level, margin, colorMuted)
		c.y = label
		c.text(formatScore(ls.Score), trackEnd+16, colorText)
		if c.line < barHeight+8 {
			c.y = y + barHeight + 8
		}
	}
	c.gap(c.line)

	c.section("강점 (Strengths)", a.Strengths, colorStrength, false)
	c.section("보완점 (Areas for Improvement)", a.Weaknesses, colorWeakness, false)

	c.text("종합 피드백", margin, colorTitle)
	for _, line := range strings.Split(a.DetailedFeedback, "\n") {
		c.paragraph(line, 16, colorText)
	}
	c.gap(c.line)

	c.section("학습 추천 (Next Steps)", a.Recommendations, colorAccent, true)

	c.gap(c.line)
	c.text(Provider+"에서 제공하는 콘텐츠입니다.", margin, colorMuted)
}

func (c *canvas) section(title string, items []string, col color.Color, numbered bool) {
	c.text(title, margin, col)
	for i, item := range items {
		bullet := "- "
		if numbered {
			bullet = fmt.Sprintf("%d. ", i+1)
		}
		c.paragraph(bullet+item, 16, colorText)
	}
	c.gap(c.line)
}

func (r *Rasterizer) lineHeight() int {
	m := r.face.Metrics()
	return (m.Ascent + m.Descent).Ceil() + 6
}

// wrap splits s into lines no wider than width, breaking at spaces and
// inside words longer than a line
func (r *Rasterizer) wrap(s string, width int) []string {
	limit := fixed.I(width)
	words := strings.Fields(s)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	current := ""
	for _, word := range words {
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if font.MeasureString(r.face, candidate) <= limit {
			current = candidate
			continue
		}
		if current != "" {
			lines = append(lines, current)
			current = ""
		}
		for font.MeasureString(r.face, word) > limit && utf8.RuneCountInString(word) > 1 {
			cut := r.fit(word, limit)
			lines = append(lines, word[:cut])
			word = word[cut:]
		}
		current = word
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

// fit returns the byte length of the longest prefix of word within limit,
// at least one rune
func (r *Rasterizer) fit(word string, limit fixed.Int26_6) int {
	cut := 0
	for i, c := range word {
		next := i + utf8.RuneLen(c)
		if font.MeasureString(r.face, word[:next]) > limit {
			break
		}
		cut = next
	}
	if cut == 0 {
		_, size := utf8.DecodeRuneInString(word)
		cut = size
	}
	return cut
}
