// Package document renders certificate PDFs.
package document

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/pkg/errors"
	"github.com/skip2/go-qrcode"

	"github.com/trezcool/cheti/core"
	"github.com/trezcool/cheti/core/certificate"
)

const (
	qrImageName = "verification-qr"
	qrSize      = 256 // px
	qrWidth     = 38.0
	margin      = 12.0
	fontFamily  = "Helvetica"
)

// PDFGenerator renders an A4 landscape certificate with a QR code of its verification link.
type PDFGenerator struct {
	appName string
}

var _ certificate.DocumentGenerator = (*PDFGenerator)(nil)

func NewPDFGenerator(conf *core.Config) *PDFGenerator {
	return &PDFGenerator{appName: conf.AppName}
}

func (g *PDFGenerator) Generate(ctx context.Context, doc certificate.Document) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	qr, err := qrcode.Encode(doc.Link, qrcode.Medium, qrSize)
	if err != nil {
		return nil, errors.Wrap(err, "encoding QR code")
	}

	cert := doc.Certificate
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("%s - %s", cert.Title, cert.ParticipantName), true)
	pdf.SetCreator(g.appName, true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pageW, pageH := pdf.GetPageSize()
	contentW := pageW - 2*margin

	pdf.SetLineWidth(1.2)
	pdf.SetDrawColor(31, 58, 96)
	pdf.Rect(margin/2, margin/2, pageW-margin, pageH-margin, "D")

	line := func(style string, size float64, h float64, text string) {
		pdf.SetFont(fontFamily, style, size)
		pdf.SetX(margin)
		pdf.CellFormat(contentW, h, tr(text), "", 1, "C", false, 0, "")
	}

	pdf.SetTextColor(31, 58, 96)
	pdf.SetY(28)
	line("B", 16, 10, doc.Partition.Name)
	pdf.Ln(8)
	line("B", 30, 14, cert.Title)
	if cert.Subtitle != "" {
		line("I", 16, 10, cert.Subtitle)
	}
	pdf.Ln(8)

	pdf.SetTextColor(40, 40, 40)
	line("", 13, 8, "This is to certify that")
	line("B", 24, 14, cert.ParticipantName)
	line("", 13, 8, "has completed the programme")
	line("B", 16, 10, cert.ProgramName)
	if cert.Grade != "" {
		line("", 13, 8, "with "+cert.Grade)
	}
	pdf.Ln(6)
	line("", 12, 8, "Issued on "+cert.IssueDate.Format("2 January 2006"))

	pdf.RegisterImageOptionsReader(qrImageName, fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(qr))
	qrX, qrY := pageW-margin-qrWidth, pageH-margin-qrWidth-6
	pdf.ImageOptions(qrImageName, qrX, qrY, qrWidth, qrWidth, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, doc.Link)

	pdf.SetFont(fontFamily, "", 9)
	pdf.SetXY(margin, pageH-margin-12)
	pdf.CellFormat(contentW-qrWidth, 5, tr("Verification ID: "+cert.VerificationID), "", 1, "L", false, 0, "")
	pdf.SetX(margin)
	pdf.CellFormat(contentW-qrWidth, 5, tr("Scan the code to verify this certificate."), "", 0, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, errors.Wrap(err, "rendering PDF")
	}
	return buf.Bytes(), nil
}
