package report

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/go-pdf/fpdf"

	"github.com/terra-clan/koi-prep/internal/models"
)

// A4 portrait in millimetres
const (
	PageWidthMM  = 210.0
	PageHeightMM = 297.0
)

// ErrEmptyImage is returned when there is nothing to paginate
var ErrEmptyImage = errors.New("report image is empty")

// FileName is the download name of an exported report
func FileName(userName string) string {
	return userName + "_KOI_Report.pdf"
}

// PageOffsets returns the vertical image position of every page. The image
// is drawn at full height on each page and shifted up by one page height
// per page, so page i shows the slice [i*pageHeight, (i+1)*pageHeight).
func PageOffsets(imageHeight, pageHeight float64) []float64 {
	offsets := []float64{0}
	for remaining := imageHeight - pageHeight; remaining > 0; remaining -= pageHeight {
		offsets = append(offsets, -float64(len(offsets))*pageHeight)
	}
	return offsets
}

// Exporter turns a report into a PDF document
type Exporter struct {
	raster *Rasterizer
}

// NewExporter creates an exporter drawing with raster
func NewExporter(raster *Rasterizer) *Exporter {
	if raster == nil {
		raster = NewRasterizer(nil)
	}
	return &Exporter{raster: raster}
}

// PDF rasterises the report and paginates it onto A4 pages. The document
// is built fully in memory.
func (e *Exporter) PDF(rep *models.ReportResponse) ([]byte, error) {
	return Paginate(e.raster.Rasterize(rep), rep.UserName+" KOI Report")
}

// Paginate lays img across as many A4 pages as its height needs, scaled to
// the page width
func Paginate(img image.Image, title string) ([]byte, error) {
	pdf, err := paginate(img, title)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, fmt.Errorf("failed to write pdf: %w", err)
	}
	return out.Bytes(), nil
}

func paginate(img image.Image, title string) (*fpdf.Fpdf, error) {
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, ErrEmptyImage
	}

	var encoded bytes.Buffer
	if err := png.Encode(&encoded, img); err != nil {
		return nil, fmt.Errorf("failed to encode report image: %w", err)
	}

	imageHeight := float64(bounds.Dy()) * PageWidthMM / float64(bounds.Dx())

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetCreator("koi-prep", true)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)

	opts := fpdf.ImageOptions{ImageType: "PNG", AllowNegativePosition: true}
	pdf.RegisterImageOptionsReader("report", opts, &encoded)

	for _, y := range PageOffsets(imageHeight, PageHeightMM) {
		pdf.AddPage()
		pdf.ImageOptions("report", 0, y, PageWidthMM, imageHeight, false, opts, 0, "")
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("failed to build pdf: %w", err)
	}
	return pdf, nil
}
