package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/signintech/gopdf"

	"github.com/certeva/certexam-backend/internal/model"
)

const certificateFontName = "certificate"

// PDFRenderer writes issued certificates as A4 landscape PDF files to a
// local output directory. Rendering is best-effort from the caller's
// perspective; issuance has already been persisted when Render runs.
type PDFRenderer struct {
	outDir   string
	fontPath string
	log      zerolog.Logger

	// gopdf document instances are not safe for concurrent use, and we
	// build one per render, but directory creation should happen once.
	initOnce sync.Once
	initErr  error
}

func NewPDFRenderer(outDir, fontPath string, log zerolog.Logger) *PDFRenderer {
	return &PDFRenderer{
		outDir:   outDir,
		fontPath: fontPath,
		log:      log.With().Str("component", "pdf_renderer").Logger(),
	}
}

func (r *PDFRenderer) Render(ctx context.Context, req model.RenderRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.initOnce.Do(func() {
		r.initErr = os.MkdirAll(r.outDir, 0o755)
	})
	if r.initErr != nil {
		return fmt.Errorf("creating certificate output dir: %w", r.initErr)
	}

	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4Landscape})
	pdf.AddPage()

	if err := pdf.AddTTFFont(certificateFontName, r.fontPath); err != nil {
		return fmt.Errorf("loading certificate font: %w", err)
	}

	pageWidth := gopdf.PageSizeA4Landscape.W

	if err := r.centeredText(&pdf, pageWidth, 36, 120, "Certificate of Achievement"); err != nil {
		return err
	}
	if err := r.centeredText(&pdf, pageWidth, 14, 180, "This certifies that"); err != nil {
		return err
	}
	if err := r.centeredText(&pdf, pageWidth, 28, 220, req.CandidateName); err != nil {
		return err
	}
	body := fmt.Sprintf("has completed %s with a score of %d%%", req.ExamTitle, req.Percentage)
	if err := r.centeredText(&pdf, pageWidth, 14, 270, body); err != nil {
		return err
	}
	if req.GradeText != "" {
		if err := r.centeredText(&pdf, pageWidth, 18, 310, req.GradeText); err != nil {
			return err
		}
	}
	footer := fmt.Sprintf("%s  |  %s", req.CertificateNumber, req.CompletedAt.Format("2 January 2006"))
	if err := r.centeredText(&pdf, pageWidth, 11, 480, footer); err != nil {
		return err
	}

	outPath := filepath.Join(r.outDir, req.CertificateNumber+".pdf")
	if err := pdf.WritePdf(outPath); err != nil {
		return fmt.Errorf("writing certificate pdf: %w", err)
	}

	r.log.Info().
		Str("certificate_number", req.CertificateNumber).
		Str("path", outPath).
		Msg("certificate pdf rendered")
	return nil
}

func (r *PDFRenderer) centeredText(pdf *gopdf.GoPdf, pageWidth float64, size int, y float64, text string) error {
	if err := pdf.SetFont(certificateFontName, "", size); err != nil {
		return fmt.Errorf("selecting certificate font: %w", err)
	}
	width, err := pdf.MeasureTextWidth(text)
	if err != nil {
		return fmt.Errorf("measuring certificate text: %w", err)
	}
	pdf.SetXY((pageWidth-width)/2, y)
	return pdf.Cell(nil, text)
}
