package report

import (
	"bytes"
	"image"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/koi-prep/internal/models"
)

func testReport() *models.ReportResponse {
	return &models.ReportResponse{
		UserName: "Kim",
		Analysis: &models.AnalysisResult{
			TotalScore:       72.5,
			RankEstimate:     "Silver",
			Strengths:        []string{"loops", "<b>io</b>"},
			Weaknesses:       []string{"dp"},
			Recommendations:  []string{"practice greedy", "review graphs"},
			DetailedFeedback: "first line\nsecond line",
			LevelScores:      []models.LevelScore{{Level: "Lv.1", Score: 100}, {Level: "Lv.3", Score: 40}},
		},
	}
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, testReport(), Options{}))
	html := buf.String()

	assert.Contains(t, html, "Kim님의 종합 평가 리포트")
	assert.Contains(t, html, "72.5")
	assert.Contains(t, html, "Estimated Rank: Silver")
	assert.Contains(t, html, "width:40%")
	assert.Contains(t, html, "&lt;b&gt;io&lt;/b&gt;")
	assert.Contains(t, html, "<p>second line</p>")
	assert.NotContains(t, html, "window.print")
}

func TestRenderPrint(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, testReport(), Options{Print: true}))
	assert.Contains(t, buf.String(), "window.print()")
	assert.Contains(t, buf.String(), "@media print")
}

func TestPageOffsets(t *testing.T) {
	tests := []struct {
		name   string
		height float64
		want   []float64
	}{
		{"shorter than a page", 100, []float64{0}},
		{"exactly one page", PageHeightMM, []float64{0}},
		{"just over one page", PageHeightMM + 1, []float64{0, -PageHeightMM}},
		{"three pages", 2.5 * PageHeightMM, []float64{0, -PageHeightMM, -2 * PageHeightMM}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PageOffsets(tt.height, PageHeightMM))
		})
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "Kim_KOI_Report.pdf", FileName("Kim"))
}

func TestRasterize(t *testing.T) {
	r := NewRasterizer(nil)
	img := r.Rasterize(testReport())

	assert.Equal(t, rasterWidth, img.Bounds().Dx())
	assert.Greater(t, img.Bounds().Dy(), 2*margin)

	// a longer report needs a taller image
	long := testReport()
	long.Analysis.DetailedFeedback = strings.Repeat("word ", 2000)
	assert.Greater(t, r.Rasterize(long).Bounds().Dy(), img.Bounds().Dy())
}

func TestWrap(t *testing.T) {
	r := NewRasterizer(nil)
	width := 7 * 10 // ten cells of the fixed font

	lines := r.wrap("aaa bbb ccc dddddddddddddddddddddd", width)
	for _, line := range lines {
		assert.LessOrEqual(t, len(line), 10, line)
	}
	assert.Equal(t, "aaa bbb", lines[0])
	assert.Equal(t, []string{""}, r.wrap("   ", width))
}

func TestExportPDF(t *testing.T) {
	data, err := NewExporter(nil).PDF(testReport())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestPaginateMultiplePages(t *testing.T) {
	// 100 px wide, 500 px tall: 1050 mm at page width, four pages
	img := image.NewRGBA(image.Rect(0, 0, 100, 500))
	pdf, err := paginate(img, "tall")
	require.NoError(t, err)
	assert.Equal(t, 4, pdf.PageCount())
}

func TestPaginateEmpty(t *testing.T) {
	_, err := Paginate(image.NewRGBA(image.Rectangle{}), "empty")
	assert.ErrorIs(t, err, ErrEmptyImage)
}
